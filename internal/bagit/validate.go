package bagit

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"eprints2bags/internal/fileutil"
	"eprints2bags/internal/services"
)

// Validate checks that dir is a complete and valid bag: the declaration is
// present, every payload manifest lists exactly the files under data/ with
// matching digests, tag manifests match, and Payload-Oxum agrees with the
// payload on disk.
func Validate(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, bagitFile)); err != nil {
		return invalid(dir, "missing bagit.txt", err)
	}

	manifests, err := filepath.Glob(filepath.Join(dir, manifestPrefix+"*.txt"))
	if err != nil {
		return invalid(dir, "list manifests", err)
	}
	if len(manifests) == 0 {
		return invalid(dir, "no payload manifest", nil)
	}

	files, err := payloadFiles(dir)
	if err != nil {
		return invalid(dir, "list payload", err)
	}
	onDisk := make(map[string]struct{}, len(files))
	for _, f := range files {
		onDisk[f] = struct{}{}
	}

	for _, manifest := range manifests {
		alg := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(manifest), manifestPrefix), ".txt")
		entries, err := readManifest(manifest)
		if err != nil {
			return invalid(dir, "read "+filepath.Base(manifest), err)
		}
		for rel := range onDisk {
			if _, listed := entries[rel]; !listed {
				return invalid(dir, fmt.Sprintf("%s not listed in %s", rel, filepath.Base(manifest)), nil)
			}
		}
		if err := verifyEntries(dir, alg, entries); err != nil {
			return err
		}
	}

	tagManifests, err := filepath.Glob(filepath.Join(dir, tagPrefix+"*.txt"))
	if err != nil {
		return invalid(dir, "list tag manifests", err)
	}
	for _, manifest := range tagManifests {
		alg := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(manifest), tagPrefix), ".txt")
		entries, err := readManifest(manifest)
		if err != nil {
			return invalid(dir, "read "+filepath.Base(manifest), err)
		}
		if err := verifyEntries(dir, alg, entries); err != nil {
			return err
		}
	}

	return checkOxum(dir, files)
}

func verifyEntries(dir, alg string, entries map[string]string) error {
	for rel, want := range entries {
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			return invalid(dir, "manifest path escapes bag: "+rel, nil)
		}
		digests, _, err := fileutil.Digests(filepath.Join(dir, filepath.FromSlash(rel)), alg)
		if err != nil {
			return invalid(dir, fmt.Sprintf("%s checksum of %s", alg, rel), err)
		}
		if !strings.EqualFold(digests[alg], want) {
			return invalid(dir, fmt.Sprintf("%s checksum mismatch for %s", alg, rel), nil)
		}
	}
	return nil
}

func checkOxum(dir string, files []string) error {
	info, err := ReadInfo(dir)
	if err != nil {
		return invalid(dir, "read bag-info.txt", err)
	}
	var oxum string
	for _, f := range info {
		if f.Key == "Payload-Oxum" {
			oxum = f.Value
		}
	}
	if oxum == "" {
		return nil
	}
	bytesPart, countPart, ok := strings.Cut(oxum, ".")
	if !ok {
		return invalid(dir, "malformed Payload-Oxum "+oxum, nil)
	}
	wantBytes, errBytes := strconv.ParseInt(bytesPart, 10, 64)
	wantCount, errCount := strconv.Atoi(countPart)
	if errBytes != nil || errCount != nil {
		return invalid(dir, "malformed Payload-Oxum "+oxum, nil)
	}

	var total int64
	for _, rel := range files {
		st, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return invalid(dir, "stat "+rel, err)
		}
		total += st.Size()
	}
	if total != wantBytes || len(files) != wantCount {
		return invalid(dir, fmt.Sprintf("Payload-Oxum %s does not match payload %d.%d", oxum, total, len(files)), nil)
	}
	return nil
}

// ReadInfo parses bag-info.txt, joining indented continuation lines.
func ReadInfo(dir string) ([]Field, error) {
	file, err := os.Open(filepath.Join(dir, bagInfoFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var info []Field
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(info) > 0 {
			info[len(info)-1].Value += " " + strings.TrimSpace(line)
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed bag-info line %q", line)
		}
		info = append(info, Field{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)})
	}
	return info, scanner.Err()
}

func readManifest(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	entries := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		sum, rel, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("malformed manifest line %q", line)
		}
		entries[decodePath(strings.TrimLeft(rel, " \t*"))] = sum
	}
	return entries, scanner.Err()
}

func invalid(dir, msg string, err error) error {
	return services.Wrap(services.ErrCorruptedContent, "bagit", "validate", filepath.Base(dir)+": "+msg, err)
}
