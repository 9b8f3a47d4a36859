package bagit

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"eprints2bags/internal/fileutil"
	"eprints2bags/internal/services"
)

const (
	// Version is the BagIt specification version written to bagit.txt.
	Version = "1.0"

	payloadDir     = "data"
	bagitFile      = "bagit.txt"
	bagInfoFile    = "bag-info.txt"
	manifestPrefix = "manifest-"
	tagPrefix      = "tagmanifest-"
)

// DefaultAlgorithms are the checksum algorithms written for every bag.
var DefaultAlgorithms = []string{fileutil.SHA256, fileutil.SHA512, fileutil.MD5}

// Field is one bag-info.txt entry.
type Field struct {
	Key   string
	Value string
}

// Bag describes a bag on disk.
type Bag struct {
	Path       string
	Algorithms []string
	Info       []Field
	// PayloadBytes and PayloadFiles make up the Payload-Oxum.
	PayloadBytes int64
	PayloadFiles int
}

// InfoValue returns the value of the first bag-info field named key.
func (b *Bag) InfoValue(key string) string {
	for _, f := range b.Info {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

// MakeOptions controls bag creation.
type MakeOptions struct {
	Algorithms []string
	// Info fields are written to bag-info.txt after the generated ones.
	Info []Field
	// Agent fills Bag-Software-Agent.
	Agent string
	// Now supplies Bagging-Date; defaults to time.Now.
	Now func() time.Time
}

// Make converts dir in place into a bag: every existing entry moves under
// data/, then manifests, bagit.txt, bag-info.txt, and tag manifests are
// written.
func Make(dir string, opts MakeOptions) (*Bag, error) {
	if len(opts.Algorithms) == 0 {
		opts.Algorithms = DefaultAlgorithms
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if err := movePayload(dir); err != nil {
		return nil, services.Wrap(services.ErrInternal, "bagit", "move payload", dir, err)
	}

	files, err := payloadFiles(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "bagit", "list payload", dir, err)
	}

	bag := &Bag{Path: dir, Algorithms: opts.Algorithms}
	sums := make(map[string]map[string]string, len(opts.Algorithms))
	for _, alg := range opts.Algorithms {
		sums[alg] = make(map[string]string, len(files))
	}
	for _, rel := range files {
		digests, size, err := fileutil.Digests(filepath.Join(dir, filepath.FromSlash(rel)), opts.Algorithms...)
		if err != nil {
			return nil, services.Wrap(services.ErrInternal, "bagit", "checksum", rel, err)
		}
		for alg, sum := range digests {
			sums[alg][rel] = sum
		}
		bag.PayloadBytes += size
		bag.PayloadFiles++
	}

	for _, alg := range opts.Algorithms {
		if err := writeManifest(filepath.Join(dir, manifestPrefix+alg+".txt"), sums[alg]); err != nil {
			return nil, services.Wrap(services.ErrInternal, "bagit", "write manifest", alg, err)
		}
	}

	declaration := fmt.Sprintf("BagIt-Version: %s\nTag-File-Character-Encoding: UTF-8\n", Version)
	if err := os.WriteFile(filepath.Join(dir, bagitFile), []byte(declaration), 0o644); err != nil {
		return nil, services.Wrap(services.ErrInternal, "bagit", "write declaration", dir, err)
	}

	bag.Info = generatedInfo(bag, opts)
	if err := writeInfo(filepath.Join(dir, bagInfoFile), bag.Info); err != nil {
		return nil, services.Wrap(services.ErrInternal, "bagit", "write bag-info", dir, err)
	}

	if err := writeTagManifests(dir, opts.Algorithms); err != nil {
		return nil, err
	}
	return bag, nil
}

func generatedInfo(bag *Bag, opts MakeOptions) []Field {
	info := []Field{
		{Key: "Bagging-Date", Value: opts.Now().Format("2006-01-02")},
		{Key: "Payload-Oxum", Value: fmt.Sprintf("%d.%d", bag.PayloadBytes, bag.PayloadFiles)},
	}
	if opts.Agent != "" {
		info = append(info, Field{Key: "Bag-Software-Agent", Value: opts.Agent})
	}
	for _, f := range opts.Info {
		if strings.TrimSpace(f.Value) == "" {
			continue
		}
		info = append(info, f)
	}
	sort.SliceStable(info, func(i, j int) bool { return info[i].Key < info[j].Key })
	return info
}

// movePayload shifts every entry of dir into dir/data via a temporary
// sibling so a payload file that is itself named "data" does not collide.
func movePayload(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	staging, err := os.MkdirTemp(dir, ".bagit-payload-*")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.Rename(filepath.Join(dir, entry.Name()), filepath.Join(staging, entry.Name())); err != nil {
			return err
		}
	}
	if err := os.Chmod(staging, 0o755); err != nil {
		return err
	}
	return os.Rename(staging, filepath.Join(dir, payloadDir))
}

// payloadFiles lists files under data/ as slash-separated paths relative to
// the bag root, in lexical order.
func payloadFiles(dir string) ([]string, error) {
	var files []string
	root := filepath.Join(dir, payloadDir)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

func writeManifest(path string, sums map[string]string) error {
	names := make([]string, 0, len(sums))
	for name := range sums {
		names = append(names, name)
	}
	sort.Strings(names)

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	for _, name := range names {
		fmt.Fprintf(w, "%s  %s\n", sums[name], encodePath(name))
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeInfo(path string, info []Field) error {
	var b strings.Builder
	for _, f := range info {
		value := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(f.Value)
		fmt.Fprintf(&b, "%s: %s\n", f.Key, value)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func writeTagManifests(dir string, algorithms []string) error {
	tags := []string{bagitFile, bagInfoFile}
	for _, alg := range algorithms {
		tags = append(tags, manifestPrefix+alg+".txt")
	}
	for _, alg := range algorithms {
		sums := make(map[string]string, len(tags))
		for _, tag := range tags {
			digests, _, err := fileutil.Digests(filepath.Join(dir, tag), alg)
			if err != nil {
				return services.Wrap(services.ErrInternal, "bagit", "checksum tag file", tag, err)
			}
			sums[tag] = digests[alg]
		}
		if err := writeManifest(filepath.Join(dir, tagPrefix+alg+".txt"), sums); err != nil {
			return services.Wrap(services.ErrInternal, "bagit", "write tag manifest", alg, err)
		}
	}
	return nil
}

// encodePath percent-encodes the characters manifest lines cannot carry.
func encodePath(p string) string {
	return strings.NewReplacer("%", "%25", "\n", "%0A", "\r", "%0D").Replace(p)
}

func decodePath(p string) string {
	return strings.NewReplacer("%0A", "\n", "%0a", "\n", "%0D", "\r", "%0d", "\r", "%25", "%").Replace(p)
}
