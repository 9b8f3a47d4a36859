package bagit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eprints2bags/internal/services"
	"eprints2bags/internal/testsupport"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }

func populate(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "10")
	for name, content := range files {
		testsupport.WriteFile(t, filepath.Join(dir, name), content)
	}
	return dir
}

func TestMakeLayout(t *testing.T) {
	dir := populate(t, map[string][]byte{
		"10.xml":    []byte("<eprints/>"),
		"paper.pdf": testsupport.PatternBytes(4096),
		"data":      []byte("a payload file named data"),
	})

	bag, err := Make(dir, MakeOptions{
		Agent: "eprints2bags test",
		Now:   fixedNow,
		Info:  []Field{{Key: "External-Identifier", Value: "https://doi.example.org/10"}, {Key: "Empty", Value: " "}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, bag.PayloadFiles)

	for _, name := range []string{
		"bagit.txt", "bag-info.txt",
		"manifest-sha256.txt", "manifest-sha512.txt", "manifest-md5.txt",
		"tagmanifest-sha256.txt", "tagmanifest-sha512.txt", "tagmanifest-md5.txt",
		"data/10.xml", "data/paper.pdf", "data/data",
	} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	info, err := ReadInfo(dir)
	require.NoError(t, err)
	keys := make([]string, 0, len(info))
	for _, f := range info {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"Bag-Software-Agent", "Bagging-Date", "External-Identifier", "Payload-Oxum"}, keys)
	assert.Equal(t, "2026-03-14", bag.InfoValue("Bagging-Date"))
	assert.Equal(t, "4131.3", bag.InfoValue("Payload-Oxum"))

	manifest := string(testsupport.ReadFile(t, filepath.Join(dir, "manifest-md5.txt")))
	assert.Contains(t, manifest, "  data/10.xml\n")
	require.NoError(t, Validate(dir))
}

func TestValidateDetectsTampering(t *testing.T) {
	dir := populate(t, map[string][]byte{"10.xml": []byte("<eprints/>")})
	_, err := Make(dir, MakeOptions{Now: fixedNow})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "10.xml"), []byte("<changed/>"), 0o644))
	require.ErrorIs(t, Validate(dir), services.ErrCorruptedContent)
}

func TestValidateDetectsUnlistedPayload(t *testing.T) {
	dir := populate(t, map[string][]byte{"10.xml": []byte("<eprints/>")})
	_, err := Make(dir, MakeOptions{Now: fixedNow})
	require.NoError(t, err)

	testsupport.WriteFile(t, filepath.Join(dir, "data", "extra.txt"), []byte("stowaway"))
	err = Validate(dir)
	require.ErrorIs(t, err, services.ErrCorruptedContent)
	assert.Contains(t, err.Error(), "not listed")
}

func TestValidateRequiresDeclaration(t *testing.T) {
	require.ErrorIs(t, Validate(t.TempDir()), services.ErrCorruptedContent)
}

func TestPackageRoundTrip(t *testing.T) {
	files := map[string][]byte{
		"10.xml":      []byte("<?xml version='1.0' encoding='utf-8'?>\n<eprints/>\n"),
		"paper.pdf":   testsupport.PatternBytes(70000),
		"notes ü.txt": []byte("unicode name"),
	}
	dir := populate(t, files)

	packager := NewPackager(Options{Agent: "eprints2bags test", Archive: true, Now: fixedNow})
	res, err := packager.Package(context.Background(), dir, Metadata{
		InternalSenderIdentifier: "https://repository.example.edu/id/eprint/10",
		ExternalIdentifier:       "https://doi.example.org/10",
		ExternalDescription:      "Archive of EPrints record and document files",
	})
	require.NoError(t, err)
	assert.Equal(t, dir+".tgz", res.Path)
	assert.Len(t, res.SHA256, 64)
	assert.NoDirExists(t, dir)

	comment, err := Comment(res.Path)
	require.NoError(t, err)
	assert.Contains(t, comment, "https://doi.example.org/10")
	assert.Contains(t, comment, "(https://repository.example.edu/id/eprint/10)")
	assert.Contains(t, comment, "Created by eprints2bags test.")
	assert.Contains(t, comment, "Bagging-Date: ")

	out := t.TempDir()
	require.NoError(t, Extract(res.Path, out))
	extracted := filepath.Join(out, "10")
	for name, content := range files {
		assert.Equal(t, content, testsupport.ReadFile(t, filepath.Join(extracted, "data", name)), name)
	}
	require.NoError(t, Validate(extracted))
}

func TestPackageWithoutArchiveKeepsBag(t *testing.T) {
	dir := populate(t, map[string][]byte{"10.xml": []byte("<eprints/>")})

	res, err := NewPackager(Options{Now: fixedNow}).Package(context.Background(), dir, Metadata{})
	require.NoError(t, err)
	assert.Equal(t, dir, res.Path)
	assert.DirExists(t, filepath.Join(dir, "data"))
	assert.NoFileExists(t, dir+".tgz")
}

func TestVerifyRejectsTruncatedArchive(t *testing.T) {
	dir := populate(t, map[string][]byte{"paper.pdf": testsupport.PatternBytes(200000)})
	dest := dir + ".tgz"
	_, err := Tarball(dir, dest, "")
	require.NoError(t, err)
	require.NoError(t, Verify(dest))

	data := testsupport.ReadFile(t, dest)
	require.NoError(t, os.WriteFile(dest, data[:len(data)/2], 0o644))
	require.ErrorIs(t, Verify(dest), services.ErrCorruptedContent)

	require.NoError(t, os.WriteFile(dest, []byte("not gzip"), 0o644))
	require.ErrorIs(t, Verify(dest), services.ErrCorruptedContent)
}

func TestLatin1Comment(t *testing.T) {
	assert.Equal(t, "café ? ok", latin1("café ☃ ok"))
	assert.False(t, strings.ContainsRune(latin1("a\x00b"), 0))
}

func TestTarballCapsHeaderComment(t *testing.T) {
	for _, n := range []int{MaxCommentLen, MaxCommentLen + 1, 700} {
		dir := populate(t, map[string][]byte{"10.xml": []byte("<eprints/>")})
		dest := dir + ArchiveExt
		_, err := Tarball(dir, dest, strings.Repeat("c", n))
		require.NoError(t, err)
		require.NoError(t, Verify(dest), "comment length %d", n)

		comment, err := Comment(dest)
		require.NoError(t, err)
		assert.Len(t, comment, min(n, MaxCommentLen))
	}
}

func TestPackageWithLongMetadataReopens(t *testing.T) {
	dir := populate(t, map[string][]byte{
		"10.xml":    []byte("<eprints/>"),
		"paper.pdf": testsupport.PatternBytes(4096),
	})
	longURL := "https://doi.example.org/" + strings.Repeat("segment/", 80)

	res, err := NewPackager(Options{Agent: "eprints2bags version 1.0.0", Archive: true, Now: fixedNow}).
		Package(context.Background(), dir, Metadata{
			InternalSenderIdentifier: "https://repository.example.edu/id/eprint/10",
			ExternalIdentifier:       longURL,
			ExternalDescription:      "Archive of EPrints record and document files",
		})
	require.NoError(t, err)
	require.NoError(t, Verify(res.Path))

	out := t.TempDir()
	require.NoError(t, Extract(res.Path, out))
	require.NoError(t, Validate(filepath.Join(out, "10")))
	info, err := ReadInfo(filepath.Join(out, "10"))
	require.NoError(t, err)
	assert.Contains(t, info, Field{Key: "External-Identifier", Value: longURL})
}
