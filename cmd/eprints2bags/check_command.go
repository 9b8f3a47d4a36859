package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"eprints2bags/internal/eprints"
	"eprints2bags/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var idList string
	var noColor bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check network, server, and output directory readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, true, false)
			if err != nil {
				return err
			}

			records := 0
			if idList != "" {
				ids, err := eprints.ParseIdentifiers(idList)
				if err != nil {
					return err
				}
				records = len(ids)
			}

			out := cmd.OutOrStdout()
			colorize := !noColor && shouldColorize(out)
			results := preflight.RunAll(cmd.Context(), cfg, newClient(cfg, logger), records)
			if cfg.Server.APIURL == "" {
				fmt.Fprintln(out, renderCheckLine("EPrints server", statusWarn, "server.api_url not configured", colorize))
			}
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderCheckLine(r.Name, kind, r.Detail, colorize))
			}
			fmt.Fprintf(out, "  %-*s %s\n", statusLabelWidth, "Bags / archives:", yesNo(cfg.Output.Bags)+" / "+yesNo(cfg.Output.Archive))

			if failed := preflight.Failed(results); len(failed) > 0 {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&idList, "id-list", "i", "", "Identifiers the run would fetch, for the capacity check")
	cmd.Flags().BoolVarP(&noColor, "no-color", "C", false, "Disable colored output")
	return cmd
}
