package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"eprints2bags/internal/services"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, formatError(err))
		}
		os.Exit(1)
	}
}

// formatError renders tagged errors without their marker prefix; untagged
// errors (flag parsing, config) are shown as-is.
func formatError(err error) string {
	if services.Marker(err) == nil {
		return "Error: " + err.Error()
	}
	details := services.Details(err)
	return fmt.Sprintf("Error (%s): %s", details.Kind, details.Message)
}
