package bagit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"eprints2bags/internal/fileutil"
	"eprints2bags/internal/logging"
	"eprints2bags/internal/services"
)

// Metadata is the record-derived content of bag-info.txt.
type Metadata struct {
	// InternalSenderIdentifier is the record's canonical id on the server.
	InternalSenderIdentifier string
	// ExternalIdentifier is the record's official URL.
	ExternalIdentifier  string
	ExternalDescription string
}

// Options configures a Packager.
type Options struct {
	Algorithms []string
	// Agent names the software in Bag-Software-Agent and the archive comment.
	Agent string
	// Archive serializes each bag to a .tgz and removes the directory. When
	// false the validated bag is left as a directory.
	Archive bool
	Now     func() time.Time
	Logger  *slog.Logger
}

// Result describes the artifact left on disk.
type Result struct {
	// Path is the .tgz file, or the bag directory when archiving is off.
	Path   string
	Bytes  int64
	SHA256 string
	Bag    *Bag
}

// Packager turns record directories into bags and archives.
type Packager struct {
	opts   Options
	logger *slog.Logger
}

// NewPackager builds a Packager.
func NewPackager(opts Options) *Packager {
	if len(opts.Algorithms) == 0 {
		opts.Algorithms = DefaultAlgorithms
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Packager{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "packager")}
}

// Package bags dir, validates the bag, and, when archiving, writes and
// verifies dir.tgz before deleting dir.
func (p *Packager) Package(ctx context.Context, dir string, meta Metadata) (Result, error) {
	logger := logging.WithContext(ctx, p.logger)

	logger.Info("making bag", logging.String("dir", dir))
	bag, err := Make(dir, MakeOptions{
		Algorithms: p.opts.Algorithms,
		Agent:      p.opts.Agent,
		Now:        p.opts.Now,
		Info: []Field{
			{Key: "Internal-Sender-Identifier", Value: meta.InternalSenderIdentifier},
			{Key: "External-Identifier", Value: meta.ExternalIdentifier},
			{Key: "External-Description", Value: meta.ExternalDescription},
		},
	})
	if err != nil {
		return Result{}, err
	}
	if err := Validate(dir); err != nil {
		return Result{}, err
	}
	logger.Debug("bag validated",
		logging.Int("files", bag.PayloadFiles),
		logging.String("payload", humanize.Bytes(uint64(bag.PayloadBytes))),
	)

	if !p.opts.Archive {
		return Result{Path: dir, Bytes: bag.PayloadBytes, Bag: bag}, nil
	}

	dest := dir + ArchiveExt
	logger.Info("creating archive", logging.String("archive", dest))
	if _, err := Tarball(dir, dest, p.comment(bag)); err != nil {
		return Result{}, err
	}
	if err := Verify(dest); err != nil {
		return Result{}, err
	}
	sums, size, err := fileutil.Digests(dest, fileutil.SHA256)
	if err != nil {
		return Result{}, services.Wrap(services.ErrInternal, "bagit", "checksum archive", dest, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return Result{}, services.Wrap(services.ErrInternal, "bagit", "remove directory", dir, err)
	}
	logger.Debug("archive verified; directory removed",
		logging.String("archive", dest),
		logging.String("size", humanize.Bytes(uint64(size))),
	)
	return Result{Path: dest, Bytes: size, SHA256: sums[fileutil.SHA256], Bag: bag}, nil
}

// comment is the gzip header note describing the archive. It stays well
// under MaxCommentLen; the full bag-info lives in bag-info.txt.
func (p *Packager) comment(bag *Bag) string {
	var b strings.Builder
	fmt.Fprintf(&b, "BagIt v%s archive of the EPrints record", Version)
	if source := bag.InfoValue("External-Identifier"); source != "" {
		b.WriteString(" at " + source)
	}
	if id := bag.InfoValue("Internal-Sender-Identifier"); id != "" {
		b.WriteString(" (" + id + ")")
	}
	b.WriteString(".\n")
	if p.opts.Agent != "" {
		b.WriteString("Created by " + p.opts.Agent + ".\n")
	}
	if date := bag.InfoValue("Bagging-Date"); date != "" {
		b.WriteString("Bagging-Date: " + date + "\n")
	}
	return b.String()
}
