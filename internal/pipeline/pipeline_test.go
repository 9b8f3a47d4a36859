package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eprints2bags/internal/bagit"
	"eprints2bags/internal/eprints"
	"eprints2bags/internal/journal"
	"eprints2bags/internal/network"
	"eprints2bags/internal/services"
	"eprints2bags/internal/testsupport"
)

type harness struct {
	server    *testsupport.EPrintsServer
	outputDir string
	client    *network.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		server:    testsupport.NewEPrintsServer(t),
		outputDir: t.TempDir(),
		client: network.NewClient(network.Options{
			NetworkUp: func(context.Context) bool { return true },
			Sleep:     func(context.Context, time.Duration) error { return nil },
		}),
	}
}

type pipelineConfig struct {
	missingOK bool
	packager  Packager
	journal   Journal
	prefix    string
	delay     time.Duration
	sleep     func(context.Context, time.Duration) error
}

func (h *harness) pipeline(cfg pipelineConfig) *Pipeline {
	server := eprints.Server{BaseURL: h.server.APIURL()}
	return New(Dependencies{
		Fetcher:    eprints.NewFetcher(h.client, server, cfg.missingOK, nil),
		Downloader: h.client,
		Packager:   cfg.packager,
		Journal:    cfg.journal,
	}, Options{
		OutputDir:  h.outputDir,
		NamePrefix: cfg.prefix,
		Server:     server,
		Delay:      cfg.delay,
		Sleep:      cfg.sleep,
	})
}

func archiving() Packager {
	return bagit.NewPackager(bagit.Options{Agent: "eprints2bags test", Archive: true})
}

func TestRunSingleRecordEndToEnd(t *testing.T) {
	h := newHarness(t)
	pdf := testsupport.PatternBytes(5000)
	h.server.AddRecord("10", testsupport.Document{Name: "paper.pdf", Content: pdf})

	report, err := h.pipeline(pipelineConfig{packager: archiving()}).Run(context.Background(), []string{"10"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Empty(t, report.Missing)
	assert.NotEmpty(t, report.RunID)

	archive := filepath.Join(h.outputDir, "10.tgz")
	assert.FileExists(t, archive)
	assert.NoDirExists(t, filepath.Join(h.outputDir, "10"))
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StatePackaged, report.Outcomes[0].State)
	assert.Equal(t, archive, report.Outcomes[0].Artifact)

	extracted := t.TempDir()
	require.NoError(t, bagit.Extract(archive, extracted))
	bagDir := filepath.Join(extracted, "10")
	require.NoError(t, bagit.Validate(bagDir))
	assert.Equal(t, pdf, testsupport.ReadFile(t, filepath.Join(bagDir, "data", "paper.pdf")))

	metadata := testsupport.ReadFile(t, filepath.Join(bagDir, "data", "10.xml"))
	assert.True(t, bytes.HasPrefix(metadata, []byte("<?xml version='1.0' encoding='utf-8'?>\n")))

	info, err := bagit.ReadInfo(bagDir)
	require.NoError(t, err)
	values := map[string]string{}
	for _, f := range info {
		values[f.Key] = f.Value
	}
	assert.Equal(t, "https://repository.example.edu/id/eprint/10", values["Internal-Sender-Identifier"])
	assert.Equal(t, "https://doi.example.org/10", values["External-Identifier"])
	assert.Equal(t, ExternalDescription, values["External-Description"])
}

func TestRunSkipsDerivedDocuments(t *testing.T) {
	h := newHarness(t)
	h.server.AddRecord("10",
		testsupport.Document{Name: "A.pdf", Content: []byte("a")},
		testsupport.Document{Name: "B.jpg", Content: []byte("thumb"), Derived: true},
		testsupport.Document{Name: "C.txt", Content: []byte("c")},
	)

	report, err := h.pipeline(pipelineConfig{}).Run(context.Background(), []string{"10"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Outcomes[0].Documents)

	dir := filepath.Join(h.outputDir, "10")
	assert.FileExists(t, filepath.Join(dir, "A.pdf"))
	assert.FileExists(t, filepath.Join(dir, "C.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "B.jpg"))

	var downloads []string
	for _, path := range h.server.Requests() {
		if strings.HasPrefix(path, "/files/") {
			downloads = append(downloads, path)
		}
	}
	assert.Equal(t, []string{"/files/10/A.pdf", "/files/10/C.txt"}, downloads)
}

func TestRunWithoutPackagerLeavesDirectory(t *testing.T) {
	h := newHarness(t)
	h.server.AddRecord("10", testsupport.Document{Name: "paper.pdf", Content: []byte("pdf")})

	report, err := h.pipeline(pipelineConfig{prefix: "caltech-"}).Run(context.Background(), []string{"10"})
	require.NoError(t, err)
	assert.Equal(t, StateLeftAsDirectory, report.Outcomes[0].State)

	dir := filepath.Join(h.outputDir, "caltech-10")
	assert.FileExists(t, filepath.Join(dir, "caltech-10.xml"))
	assert.Equal(t, []byte("pdf"), testsupport.ReadFile(t, filepath.Join(dir, "paper.pdf")))
	assert.NoFileExists(t, dir+".tgz")
}

func TestRunSkipsMissingRecordsWhenAllowed(t *testing.T) {
	h := newHarness(t)
	h.server.AddRecord("1")
	h.server.AddRecord("3")
	h.server.SetStatus("/rest/eprint/4.xml", http.StatusForbidden)

	report, err := h.pipeline(pipelineConfig{missingOK: true}).Run(context.Background(), []string{"1", "2", "3", "4"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, []string{"2", "4"}, report.Missing)
	assert.Equal(t, []string{"2", "4"}, report.Skipped())
	assert.NoDirExists(t, filepath.Join(h.outputDir, "2"))
}

func TestRunAbortsOnMissingRecordByDefault(t *testing.T) {
	h := newHarness(t)
	h.server.AddRecord("1")
	h.server.AddRecord("3")

	report, err := h.pipeline(pipelineConfig{}).Run(context.Background(), []string{"1", "2", "3"})
	require.ErrorIs(t, err, services.ErrNoContent)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, []string{"2", "3"}, report.Missing)
	assert.NotContains(t, h.server.Requests(), "/rest/eprint/3.xml")
}

func TestRunAbortsOnServiceFailureEvenWhenMissingAllowed(t *testing.T) {
	h := newHarness(t)
	h.server.SetStatus("/rest/eprint/1.xml", http.StatusInternalServerError)
	h.server.AddRecord("2")

	report, err := h.pipeline(pipelineConfig{missingOK: true}).Run(context.Background(), []string{"1", "2"})
	require.ErrorIs(t, err, services.ErrServiceFailure)
	assert.Zero(t, report.Processed)
	assert.Equal(t, []string{"1", "2"}, report.Missing)
}

func TestRunAbortsOnDocumentFailure(t *testing.T) {
	h := newHarness(t)
	h.server.AddRecord("10", testsupport.Document{Name: "paper.pdf", Content: []byte("pdf")})
	h.server.SetStatus("/files/10/paper.pdf", http.StatusNotFound)
	h.server.AddRecord("11")

	report, err := h.pipeline(pipelineConfig{missingOK: true, packager: archiving()}).Run(context.Background(), []string{"10", "11"})
	require.ErrorIs(t, err, services.ErrNoContent)
	assert.Zero(t, report.Processed)
	assert.Equal(t, StateFailed, report.Outcomes[0].State)
	assert.NoFileExists(t, filepath.Join(h.outputDir, "10.tgz"))
	assert.NoFileExists(t, filepath.Join(h.outputDir, "10", "paper.pdf"))
}

func TestRunFullSuccessEmptiesMissingSet(t *testing.T) {
	h := newHarness(t)
	ids := make([]string, 0, 5)
	for i := 1; i <= 5; i++ {
		id := strconv.Itoa(i)
		h.server.AddRecord(id, testsupport.Document{Name: "doc.txt", Content: []byte(id)})
		ids = append(ids, id)
	}

	var pauses int
	report, err := h.pipeline(pipelineConfig{
		packager: archiving(),
		delay:    100 * time.Millisecond,
		sleep: func(context.Context, time.Duration) error {
			pauses++
			return nil
		},
	}).Run(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, len(ids), report.Processed)
	assert.Empty(t, report.Missing)
	assert.Equal(t, len(ids)-1, pauses)
	for _, id := range ids {
		assert.FileExists(t, filepath.Join(h.outputDir, id+".tgz"))
	}
}

func TestRunRejectsIdentifierOutsideOutputDir(t *testing.T) {
	h := newHarness(t)
	h.server.AddRecord("1")

	for _, id := range []string{"../escape", "a/b", ".."} {
		t.Run(id, func(t *testing.T) {
			report, err := h.pipeline(pipelineConfig{}).Run(context.Background(), []string{id, "1"})
			require.ErrorIs(t, err, services.ErrConfiguration)
			assert.Zero(t, report.Processed)
			assert.Equal(t, []string{id, "1"}, report.Missing)
			assert.NoDirExists(t, filepath.Join(filepath.Dir(h.outputDir), "escape"))
			assert.Empty(t, h.server.Requests())
		})
	}
}

func TestRunInterruptedBeforeStart(t *testing.T) {
	h := newHarness(t)
	h.server.AddRecord("1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := h.pipeline(pipelineConfig{}).Run(ctx, []string{"1"})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsInterrupt(err))
	assert.True(t, report.Interrupted)
	assert.Zero(t, report.Processed)
	assert.Equal(t, []string{"1"}, report.Missing)
}

func TestRunInterruptedDuringPacing(t *testing.T) {
	h := newHarness(t)
	h.server.AddRecord("1")
	h.server.AddRecord("2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	report, err := h.pipeline(pipelineConfig{
		delay: time.Hour,
		sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return network.SleepWithContext(ctx, d)
		},
	}).Run(ctx, []string{"1", "2"})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Interrupted)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, []string{"2"}, report.Missing)
}

func TestRunRecordsJournal(t *testing.T) {
	h := newHarness(t)
	h.server.AddRecord("10", testsupport.Document{Name: "paper.pdf", Content: []byte("pdf")})

	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer store.Close()

	report, err := h.pipeline(pipelineConfig{packager: archiving(), journal: store}).Run(context.Background(), []string{"10"})
	require.NoError(t, err)

	entries, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, report.RunID, entries[0].RunID)
	assert.Equal(t, "10", entries[0].Identifier)
	assert.Equal(t, filepath.Join(h.outputDir, "10.tgz"), entries[0].ArtifactPath)
	assert.Len(t, entries[0].SHA256, 64)
	assert.Equal(t, 1, entries[0].Documents)
}

func TestRunSendsCredentialsToDocuments(t *testing.T) {
	h := newHarness(t)
	h.server.RequireAuth("archivist", "s3cret")
	h.server.AddRecord("10", testsupport.Document{Name: "paper.pdf", Content: []byte("pdf")})

	server := eprints.Server{BaseURL: h.server.APIURL(), User: "archivist", Password: "s3cret"}
	p := New(Dependencies{
		Fetcher:    eprints.NewFetcher(h.client, server, false, nil),
		Downloader: h.client,
	}, Options{OutputDir: h.outputDir, Server: server})

	report, err := p.Run(context.Background(), []string{"10"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.FileExists(t, filepath.Join(h.outputDir, "10", "paper.pdf"))
}

func TestMissingDropsRepeats(t *testing.T) {
	got := missing([]string{"1", "2", "2", "3", "1"}, map[string]struct{}{"3": {}})
	assert.Equal(t, []string{"1", "2"}, got)
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Report{Processed: 1234, OutputDir: "/out"}.WriteSummary(&buf))
	assert.Equal(t, "Wrote 1,234 EPrints records to /out.\n", buf.String())

	buf.Reset()
	require.NoError(t, Report{Processed: 1, OutputDir: "/out", Missing: []string{"2", "5"}}.WriteSummary(&buf))
	assert.Equal(t, "Wrote 1 EPrints record to /out.\nThe following records were not obtained: 2, 5.\n", buf.String())

	many := make([]string, MaxListedMissing+1)
	for i := range many {
		many[i] = fmt.Sprint(i)
	}
	buf.Reset()
	require.NoError(t, Report{OutputDir: "/out", Missing: many, Interrupted: true}.WriteSummary(&buf))
	assert.Equal(t, "Interrupted.\nWrote 0 EPrints records to /out.\n501 requested records were not obtained (too many to list).\n", buf.String())
}

type stubLister []string

func (s stubLister) ListAll(context.Context) ([]string, error) { return s, nil }

func TestResolveIdentifiers(t *testing.T) {
	ids, err := ResolveIdentifiers(context.Background(), "5-8", stubLister{"x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "6", "7", "8"}, ids)

	ids, err = ResolveIdentifiers(context.Background(), "", stubLister{"4", "9"})
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "9"}, ids)

	_, err = ResolveIdentifiers(context.Background(), "9-1", stubLister{})
	require.ErrorIs(t, err, services.ErrConfiguration)
}
