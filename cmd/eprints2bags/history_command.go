package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"eprints2bags/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var identifier string
	var plain bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show records archived by previous runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			var entries []journal.Entry
			if identifier != "" {
				entries, err = store.ForIdentifier(cmd.Context(), identifier)
			} else {
				entries, err = store.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No archived records recorded.")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"When", "Run", "Record", "Docs", "Size", "Artifact", "SHA-256"},
				historyRows(entries, time.Now()),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
				plain,
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show (0 for all)")
	cmd.Flags().StringVarP(&identifier, "record", "r", "", "Show every entry for one identifier")
	cmd.Flags().BoolVar(&plain, "plain", false, "Use ASCII table borders")
	return cmd
}

func historyRows(entries []journal.Entry, now time.Time) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		sha := e.SHA256
		if len(sha) > 12 {
			sha = sha[:12]
		}
		run := e.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		rows = append(rows, []string{
			humanize.RelTime(e.CreatedAt, now, "ago", "from now"),
			run,
			e.Identifier,
			fmt.Sprint(e.Documents),
			humanize.Bytes(uint64(e.Bytes)),
			e.ArtifactPath,
			sha,
		})
	}
	return rows
}
