package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"eprints2bags/internal/bagit"
	"eprints2bags/internal/eprints"
	"eprints2bags/internal/journal"
	"eprints2bags/internal/logging"
	"eprints2bags/internal/network"
	"eprints2bags/internal/services"
)

// ExternalDescription is written to every bag's bag-info.txt.
const ExternalDescription = "Archive of EPrints record and document files"

// RecordFetcher retrieves one record's metadata.
type RecordFetcher interface {
	FetchRecord(ctx context.Context, id string) (eprints.FetchResult, error)
}

// Downloader retrieves one URL to one local file.
type Downloader interface {
	Download(ctx context.Context, rawURL, destPath string) (int64, error)
}

// Packager turns a populated record directory into its final artifact.
type Packager interface {
	Package(ctx context.Context, dir string, meta bagit.Metadata) (bagit.Result, error)
}

// Journal receives an entry for every completed record.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) (int64, error)
}

// Dependencies are the collaborators a Pipeline drives. Packager and
// Journal may be nil: without a packager records are left as plain
// directories, and without a journal nothing is recorded.
type Dependencies struct {
	Fetcher    RecordFetcher
	Downloader Downloader
	Packager   Packager
	Journal    Journal
}

// Options configures a Pipeline.
type Options struct {
	OutputDir string
	// NamePrefix is prepended verbatim to record directory and metadata
	// file names; callers include any separator.
	NamePrefix string
	// Server supplies the credentials embedded in document URLs.
	Server eprints.Server
	// Delay is the pause between records.
	Delay time.Duration
	// Sleep overrides the pacing pause; tests use it to avoid real delays.
	Sleep  func(context.Context, time.Duration) error
	Logger *slog.Logger
}

// Pipeline is the per-record orchestrator. A Pipeline is not safe for
// concurrent Runs.
type Pipeline struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger
}

// New builds a Pipeline.
func New(deps Dependencies, opts Options) *Pipeline {
	if opts.Sleep == nil {
		opts.Sleep = network.SleepWithContext
	}
	return &Pipeline{
		deps:   deps,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "pipeline"),
	}
}

// Run processes ids in order. It returns the report together with the
// terminal error that stopped the run, if any; the report always reflects
// the records completed before the stop.
func (p *Pipeline) Run(ctx context.Context, ids []string) (report Report, err error) {
	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, p.logger)

	report = Report{RunID: runID, OutputDir: p.opts.OutputDir, Requested: ids}
	completed := make(map[string]struct{}, len(ids))
	defer func() {
		report.Missing = missing(ids, completed)
	}()

	logger.Info("beginning run",
		logging.String("records", humanize.Comma(int64(len(ids)))),
		logging.String("output_dir", p.opts.OutputDir),
		logging.Bool("packaging", p.deps.Packager != nil),
		logging.Bool("journal", p.deps.Journal != nil),
	)

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			report.Interrupted = true
			logger.Warn("run interrupted", logging.Int("processed", report.Processed))
			return report, err
		}

		// In-flight work for a record is not abandoned on cancellation.
		recordCtx := context.WithoutCancel(services.WithRecordID(ctx, id))
		outcome, err := p.processRecord(recordCtx, id)
		report.Outcomes = append(report.Outcomes, outcome)
		if err != nil {
			details := services.Details(err)
			logging.WithContext(recordCtx, p.logger).Error("record failed; stopping run",
				logging.String("kind", details.Kind),
				logging.String("detail", details.Message),
			)
			return report, err
		}
		if outcome.State == StateSkipped {
			continue
		}

		completed[id] = struct{}{}
		report.Processed++

		if p.opts.Delay > 0 && i < len(ids)-1 {
			if err := p.opts.Sleep(ctx, p.opts.Delay); err != nil {
				report.Interrupted = true
				logger.Warn("run interrupted", logging.Int("processed", report.Processed))
				return report, err
			}
		}
	}

	logger.Info("run complete",
		logging.String("processed", humanize.Comma(int64(report.Processed))),
		logging.Int("missing", len(missing(ids, completed))),
	)
	return report, nil
}

func (p *Pipeline) processRecord(ctx context.Context, id string) (Outcome, error) {
	logger := logging.WithContext(ctx, p.logger)
	outcome := Outcome{Identifier: id, State: StateRequesting}
	name := p.opts.NamePrefix + id
	if !filepath.IsLocal(name) || strings.ContainsAny(name, `/\`) {
		return failed(outcome, services.Wrap(services.ErrConfiguration, "pipeline", "",
			fmt.Sprintf("identifier %q cannot be used as a directory name", id), nil))
	}

	logger.Info("getting record")
	res, err := p.deps.Fetcher.FetchRecord(services.WithStage(ctx, "fetch"), id)
	if err != nil {
		return failed(outcome, err)
	}
	if res.Skipped {
		outcome.State = StateSkipped
		outcome.Err = res.Reason
		return outcome, nil
	}
	rec := res.Record

	dir := filepath.Join(p.opts.OutputDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return failed(outcome, services.Wrap(services.ErrInternal, "pipeline", "create record directory", dir, err))
	}
	if _, err := eprints.WriteRecord(dir, p.opts.NamePrefix, rec); err != nil {
		return failed(outcome, err)
	}

	outcome.State = StateDownloading
	docs := eprints.ExtractDocuments(rec)
	downloadCtx := services.WithStage(ctx, "download")
	for _, doc := range docs {
		name, err := eprints.DocumentFileName(doc.URL)
		if err != nil {
			return failed(outcome, err)
		}
		rawURL, err := p.opts.Server.WithCredentials(doc.URL)
		if err != nil {
			return failed(outcome, err)
		}
		logger.Debug("downloading document", logging.String("file", name))
		if _, err := p.deps.Downloader.Download(downloadCtx, rawURL, filepath.Join(dir, name)); err != nil {
			return failed(outcome, err)
		}
		outcome.Documents++
	}

	outcome.Artifact = dir
	outcome.State = StateLeftAsDirectory
	var result bagit.Result
	if p.deps.Packager != nil {
		result, err = p.deps.Packager.Package(services.WithStage(ctx, "package"), dir, bagit.Metadata{
			InternalSenderIdentifier: rec.ID,
			ExternalIdentifier:       rec.OfficialURL,
			ExternalDescription:      ExternalDescription,
		})
		if err != nil {
			return failed(outcome, err)
		}
		outcome.Artifact = result.Path
		if result.Path != dir {
			outcome.State = StatePackaged
		}
	}

	p.journal(ctx, id, outcome, result)
	logger.Info("record complete",
		logging.String("artifact", outcome.Artifact),
		logging.Int("documents", outcome.Documents),
	)
	return outcome, nil
}

func (p *Pipeline) journal(ctx context.Context, id string, outcome Outcome, result bagit.Result) {
	if p.deps.Journal == nil {
		return
	}
	runID, _ := services.RunIDFromContext(ctx)
	_, err := p.deps.Journal.Record(ctx, journal.Entry{
		RunID:        runID,
		Identifier:   id,
		ArtifactPath: outcome.Artifact,
		SHA256:       result.SHA256,
		Bytes:        result.Bytes,
		Documents:    outcome.Documents,
	})
	if err != nil {
		logging.WithContext(ctx, p.logger).Warn("journal write failed", logging.Error(err))
	}
}

func failed(outcome Outcome, err error) (Outcome, error) {
	outcome.State = StateFailed
	outcome.Err = err
	return outcome, err
}

// missing returns the requested identifiers not in completed, keeping
// request order and dropping repeats.
func missing(requested []string, completed map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(requested))
	var out []string
	for _, id := range requested {
		if _, ok := completed[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// IsInterrupt reports whether err came from operator cancellation rather
// than a record failure.
func IsInterrupt(err error) bool {
	return errors.Is(err, context.Canceled)
}
