package bagit

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"eprints2bags/internal/fileutil"
	"eprints2bags/internal/services"
)

// ArchiveExt is the extension of serialized bags.
const ArchiveExt = ".tgz"

// MaxCommentLen is the longest gzip header comment readers accept; longer
// header strings are rejected as a malformed header.
const MaxCommentLen = 511

// Tarball serializes dir into a gzip-compressed tar at dest. Members are
// rooted at dir's base name so extraction recreates the directory. comment
// is stored in the gzip header; characters outside Latin-1 are replaced and
// the text is cut to MaxCommentLen characters.
// dest appears only once the archive is complete.
func Tarball(dir, dest, comment string) (int64, error) {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeTar(pw, dir, comment))
	}()

	written, err := fileutil.WriteAtomic(dest, pr)
	pr.CloseWithError(err)
	if err != nil {
		return 0, services.Wrap(services.ErrInternal, "bagit", "archive", dest, err)
	}
	return written, nil
}

func writeTar(w io.Writer, dir, comment string) error {
	gz, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return err
	}
	gz.Name = filepath.Base(dir) + ".tar"
	gz.Comment = latin1(comment)

	tw := tar.NewWriter(gz)
	root := filepath.Base(dir)
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := path.Join(root, filepath.ToSlash(rel))

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		return err
	})
	if walkErr != nil {
		return walkErr
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func latin1(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == MaxCommentLen {
			break
		}
		n++
		if r == 0 || r > 0xff {
			b.WriteByte('?')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Verify reads every member of the archive through to the end so that a
// truncated or corrupt file is caught before its source is deleted.
func Verify(archivePath string) error {
	members := 0
	err := walkArchive(archivePath, func(hdr *tar.Header, r io.Reader) error {
		members++
		_, err := io.Copy(io.Discard, r)
		return err
	})
	if err != nil {
		return services.Wrap(services.ErrCorruptedContent, "bagit", "verify archive", archivePath, err)
	}
	if members == 0 {
		return services.Wrap(services.ErrCorruptedContent, "bagit", "verify archive", archivePath+" is empty", nil)
	}
	return nil
}

// Comment returns the comment stored in the archive's gzip header.
func Comment(archivePath string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", err
	}
	defer gz.Close()
	return gz.Comment, nil
}

// Extract unpacks the archive under destDir. Members that would land
// outside destDir are rejected.
func Extract(archivePath, destDir string) error {
	err := walkArchive(archivePath, func(hdr *tar.Header, r io.Reader) error {
		rel := filepath.FromSlash(strings.TrimSuffix(hdr.Name, "/"))
		if !filepath.IsLocal(rel) {
			return fmt.Errorf("member %q escapes destination", hdr.Name)
		}
		target := filepath.Join(destDir, rel)
		switch hdr.Typeflag {
		case tar.TypeDir:
			return os.MkdirAll(target, 0o755)
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(hdr.Mode)&0o777|0o200)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, r); err != nil {
				out.Close()
				return err
			}
			return out.Close()
		default:
			return nil
		}
	})
	if err != nil {
		return services.Wrap(services.ErrCorruptedContent, "bagit", "extract archive", archivePath, err)
	}
	return nil
}

func walkArchive(archivePath string, visit func(*tar.Header, io.Reader) error) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			// Reading to the end of the gzip stream checks its trailer.
			_, err = io.Copy(io.Discard, gz)
			return err
		}
		if err != nil {
			return err
		}
		if err := visit(hdr, tr); err != nil {
			return err
		}
	}
}
