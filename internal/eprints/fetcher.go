package eprints

import (
	"context"
	"errors"
	"log/slog"

	"eprints2bags/internal/logging"
	"eprints2bags/internal/network"
	"eprints2bags/internal/services"
)

// Getter is the slice of network.Client the fetcher and enumerator need.
type Getter interface {
	Fetch(ctx context.Context, rawURL string, mode network.Mode) ([]byte, int, error)
}

// FetchResult is the outcome of FetchRecord. Exactly one of Record and
// Skipped is set when the error is nil.
type FetchResult struct {
	Record  *Record
	Skipped bool
	// Reason is the classified error that caused a skip.
	Reason error
}

// Fetcher retrieves record metadata and applies the missing-record policy.
type Fetcher struct {
	getter    Getter
	server    Server
	missingOK bool
	logger    *slog.Logger
}

// NewFetcher builds a Fetcher. When missingOK is set, records the server
// reports as absent or forbidden are skipped with a warning instead of
// failing.
func NewFetcher(getter Getter, server Server, missingOK bool, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		getter:    getter,
		server:    server,
		missingOK: missingOK,
		logger:    logging.NewComponentLogger(logger, "fetcher"),
	}
}

// FetchRecord retrieves and parses the metadata for id.
func (f *Fetcher) FetchRecord(ctx context.Context, id string) (FetchResult, error) {
	logger := logging.WithContext(ctx, f.logger)
	rawURL, err := f.server.URL(RecordPath(id))
	if err != nil {
		return FetchResult{}, err
	}

	body, _, err := f.getter.Fetch(ctx, rawURL, network.ModeFetch)
	if err != nil {
		if f.missingOK && Skippable(err) {
			details := services.Details(err)
			logger.Warn("skipping record",
				logging.String("reason", details.Kind),
				logging.String("detail", details.Message),
			)
			return FetchResult{Skipped: true, Reason: err}, nil
		}
		return FetchResult{}, err
	}

	rec, err := ParseRecord(id, body)
	if err != nil {
		return FetchResult{}, err
	}
	logger.Debug("fetched record",
		logging.Int("documents", len(rec.Documents)),
		logging.String("official_url", rec.OfficialURL),
	)
	return FetchResult{Record: rec}, nil
}

// Skippable reports whether err may be converted into a skip by the
// missing-record policy.
func Skippable(err error) bool {
	return errors.Is(err, services.ErrNoContent) || errors.Is(err, services.ErrAuthentication)
}
