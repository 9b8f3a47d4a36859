package fileutil

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
)

// Checksum algorithm names, spelled the way BagIt manifest filenames use them.
const (
	SHA256 = "sha256"
	SHA512 = "sha512"
	MD5    = "md5"
)

// NewHash returns a hash for a supported algorithm name.
func NewHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case MD5:
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", algorithm)
	}
}

// WriteAtomic streams r into a temporary file beside dst and renames it over
// dst once the copy succeeds, so dst is either the complete new content or
// whatever was there before. Returns the number of bytes written.
func WriteAtomic(dst string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".part-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	written, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return written, err
	}
	if err := tmp.Chmod(0o644); err != nil {
		cleanup()
		return written, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return written, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return written, err
	}
	return written, nil
}

// Digests reads path once and returns the hex digest for every requested
// algorithm along with the file size.
func Digests(path string, algorithms ...string) (map[string]string, int64, error) {
	hashes := make(map[string]hash.Hash, len(algorithms))
	writers := make([]io.Writer, 0, len(algorithms))
	for _, alg := range algorithms {
		h, err := NewHash(alg)
		if err != nil {
			return nil, 0, err
		}
		hashes[alg] = h
		writers = append(writers, h)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	size, err := io.Copy(io.MultiWriter(writers...), f)
	if err != nil {
		return nil, 0, fmt.Errorf("hash %s: %w", path, err)
	}

	out := make(map[string]string, len(hashes))
	for alg, h := range hashes {
		out[alg] = hex.EncodeToString(h.Sum(nil))
	}
	return out, size, nil
}
