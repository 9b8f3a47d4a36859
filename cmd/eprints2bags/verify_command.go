package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"eprints2bags/internal/bagit"
)

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "verify ARCHIVE.tgz|BAG-DIR...",
		Short:       "Verify archives or bag directories produced by a run",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failures := 0
			for _, target := range args {
				if err := verifyTarget(target); err != nil {
					failures++
					fmt.Fprintf(out, "%s: %s\n", target, formatError(err))
					continue
				}
				fmt.Fprintf(out, "%s: valid\n", target)
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d failed verification", failures, len(args))
			}
			return nil
		},
	}
}

func verifyTarget(target string) error {
	info, err := os.Stat(target)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return bagit.Validate(target)
	}
	if err := bagit.Verify(target); err != nil {
		return err
	}

	scratch, err := os.MkdirTemp("", "eprints2bags-verify-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)
	if err := bagit.Extract(target, scratch); err != nil {
		return err
	}
	bagDir := filepath.Join(scratch, strings.TrimSuffix(filepath.Base(target), bagit.ArchiveExt))
	return bagit.Validate(bagDir)
}
