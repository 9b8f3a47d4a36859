package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"eprints2bags/internal/bagit"
	"eprints2bags/internal/config"
	"eprints2bags/internal/credentials"
	"eprints2bags/internal/eprints"
	"eprints2bags/internal/journal"
	"eprints2bags/internal/logging"
	"eprints2bags/internal/pipeline"
	"eprints2bags/internal/preflight"
	"eprints2bags/internal/services"
)

const lockFileName = ".eprints2bags.lock"

type runFlags struct {
	apiURL    string
	baseName  string
	idList    string
	missingOK bool
	outputDir string
	user      string
	password  string
	quiet     bool
	delayMS   int
	noBags    bool
	noArchive bool
	noColor   bool
	debug     bool
	noKeyring bool
	resetKeys bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.apiURL, "api-url", "a", "", "EPrints REST API root, e.g. https://eprints.example.edu/rest")
	fs.StringVarP(&f.baseName, "base-name", "b", "", "Prefix for record directory and file names")
	fs.StringVarP(&f.idList, "id-list", "i", "", "Identifiers to fetch: number, range, comma list, or file")
	fs.BoolVarP(&f.missingOK, "missing-ok", "m", false, "Skip records the server reports as missing or forbidden")
	fs.StringVarP(&f.outputDir, "output-dir", "o", "", "Directory to write records under")
	fs.StringVarP(&f.user, "user", "u", "", "EPrints user name")
	fs.StringVarP(&f.password, "password", "p", "", "EPrints password")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "Only log warnings and errors")
	fs.IntVarP(&f.delayMS, "delay", "y", 0, "Milliseconds to pause between records")
	fs.BoolVarP(&f.noBags, "no-bags", "B", false, "Leave plain record directories instead of bags")
	fs.BoolVar(&f.noArchive, "no-archive", false, "Leave bags as directories instead of .tgz archives")
	fs.BoolVarP(&f.noColor, "no-color", "C", false, "Disable colored output")
	fs.BoolVarP(&f.debug, "debug", "Z", false, "Log debugging detail")
	fs.BoolVarP(&f.noKeyring, "no-keyring", "K", false, "Do not read or store credentials in the OS keyring")
	fs.BoolVarP(&f.resetKeys, "reset-keys", "R", false, "Ask for the user name and password again and replace the stored ones")
}

// apply overlays explicitly set flags on cfg and re-validates it.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	if fs.Changed("api-url") {
		cfg.Server.APIURL = f.apiURL
	}
	if fs.Changed("user") {
		cfg.Server.User = f.user
	}
	if fs.Changed("password") {
		cfg.Server.Password = f.password
	}
	if fs.Changed("base-name") {
		cfg.Output.NamePrefix = f.baseName
	}
	if fs.Changed("output-dir") {
		cfg.Output.Dir = f.outputDir
	}
	if fs.Changed("missing-ok") {
		cfg.Fetch.MissingOK = f.missingOK
	}
	if fs.Changed("delay") {
		cfg.Fetch.DelayMS = f.delayMS
	}
	if f.noBags {
		cfg.Output.Bags = false
	}
	if f.noArchive {
		cfg.Output.Archive = false
	}
	if f.noKeyring {
		cfg.Server.Keyring = false
	}
	if err := cfg.Normalize(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return cfg.RequireServer()
}

func runArchive(cmd *cobra.Command, ctx *commandContext, flags *runFlags) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if err := flags.apply(cmd, cfg); err != nil {
		return err
	}
	logger, err := newLogger(cfg, flags.quiet, flags.debug)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return services.Wrap(services.ErrInternal, "run", "prepare directories", "", err)
	}

	lockPath := filepath.Join(cfg.Output.Dir, lockFileName)
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return services.Wrap(services.ErrConfiguration, "run", "", fmt.Sprintf("another eprints2bags run is writing to %s", cfg.Output.Dir), nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release output lock", logging.Error(err))
		}
		_ = os.Remove(lockPath)
	}()

	cfg.Server.User, cfg.Server.Password = credentials.NewResolver(credentials.Options{
		UseKeyring: cfg.Server.Keyring,
		Reset:      flags.resetKeys,
		Logger:     logger,
	}).Resolve(cfg.Server.APIURL, cfg.Server.User, cfg.Server.Password)

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newClient(cfg, logger)
	if failed := preflight.Failed(preflight.RunAll(runCtx, cfg, client, 0)); len(failed) > 0 {
		return preflightError(failed)
	}

	server := eprints.Server{BaseURL: cfg.Server.APIURL, User: cfg.Server.User, Password: cfg.Server.Password}
	if flags.idList == "" {
		logger.Info("fetching records list", logging.String(logging.FieldURL, cfg.Server.APIURL))
	}
	ids, err := pipeline.ResolveIdentifiers(runCtx, flags.idList, eprints.NewEnumerator(client, server, logger))
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No records to process.")
		return nil
	}
	if limit := preflight.CheckSubdirLimit(cfg.Output.Dir, len(ids)); !limit.Passed {
		return preflightError([]preflight.Result{limit})
	}

	deps := pipeline.Dependencies{
		Fetcher:    eprints.NewFetcher(client, server, cfg.Fetch.MissingOK, logger),
		Downloader: client,
	}
	if cfg.Output.Bags {
		deps.Packager = bagit.NewPackager(bagit.Options{
			Agent:   softwareAgent(),
			Archive: cfg.Output.Archive,
			Logger:  logger,
		})
	}
	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			logger.Warn("journal unavailable; continuing without it", logging.Error(err))
		} else {
			defer store.Close()
			deps.Journal = store
		}
	}

	logger.Info("beginning to process records",
		logging.String("count", humanize.Comma(int64(len(ids)))),
		logging.String("output_dir", cfg.Output.Dir),
	)
	report, runErr := pipeline.New(deps, pipeline.Options{
		OutputDir:  cfg.Output.Dir,
		NamePrefix: cfg.RecordPrefix(),
		Server:     server,
		Delay:      cfg.Delay(),
		Logger:     logger,
	}).Run(runCtx, ids)

	if err := writeSummary(cmd, report, !flags.noColor); err != nil {
		return err
	}
	if runErr != nil && pipeline.IsInterrupt(runErr) {
		return context.Canceled
	}
	return runErr
}

func writeSummary(cmd *cobra.Command, report pipeline.Report, color bool) error {
	var buf bytes.Buffer
	if err := report.WriteSummary(&buf); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	colorize := color && shouldColorize(out)
	for i, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		kind := statusOK
		if i > 0 || report.Interrupted {
			kind = statusWarn
		}
		fmt.Fprintln(out, colorLine(line, kind, colorize))
	}
	return nil
}

func preflightError(failed []preflight.Result) error {
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, r.Name+": "+r.Detail)
	}
	msg := strings.Join(parts, "; ")
	for _, r := range failed {
		if r.Name == "Network" {
			return services.Wrap(services.ErrNetwork, "preflight", "", msg, nil)
		}
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "", msg, nil)
}
