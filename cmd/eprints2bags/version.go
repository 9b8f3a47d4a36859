package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"eprints2bags/internal/network"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func softwareAgent() string {
	return fmt.Sprintf("eprints2bags version %s", version)
}

func init() {
	network.UserAgent = "eprints2bags/" + version
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), softwareAgent())
			return nil
		},
	}
}
