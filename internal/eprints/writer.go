package eprints

import (
	"bytes"
	"path/filepath"

	"eprints2bags/internal/fileutil"
	"eprints2bags/internal/services"
)

// MetadataFileName is the on-disk name of a record's metadata file.
func MetadataFileName(prefix, id string) string {
	return prefix + id + MetadataExt
}

// WriteRecord stores the record's metadata in dir as prefix+id.xml and
// returns the file path.
func WriteRecord(dir, prefix string, rec *Record) (string, error) {
	dest := filepath.Join(dir, MetadataFileName(prefix, rec.Identifier))
	if _, err := fileutil.WriteAtomic(dest, bytes.NewReader(rec.MetadataBytes())); err != nil {
		return "", services.Wrap(services.ErrInternal, "eprints", "write record", dest, err)
	}
	return dest, nil
}
