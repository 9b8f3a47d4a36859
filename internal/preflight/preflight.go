package preflight

import (
	"context"
	"path/filepath"

	"eprints2bags/internal/config"
	"eprints2bags/internal/eprints"
	"eprints2bags/internal/network"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// RunAll executes every applicable check. records is the size of the
// requested set, or 0 when it is not yet known.
func RunAll(ctx context.Context, cfg *config.Config, client *network.Client, records int) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckNetwork(ctx, client))
	if cfg.Server.APIURL != "" {
		server := eprints.Server{BaseURL: cfg.Server.APIURL, User: cfg.Server.User, Password: cfg.Server.Password}
		results = append(results, CheckServer(ctx, client, server))
	}
	results = append(results, CheckOutputDirectory("Output directory", cfg.Output.Dir))
	if records > 0 {
		results = append(results, CheckSubdirLimit(cfg.Output.Dir, records))
	}
	if cfg.Journal.Enabled {
		results = append(results, CheckOutputDirectory("Journal directory", filepath.Dir(cfg.Journal.Path)))
	}
	return results
}
