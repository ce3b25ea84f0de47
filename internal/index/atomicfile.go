package index

import (
	"os"
	"path/filepath"

	"github.com/kittclouds/recall/internal/errs"
)

// writeAtomicFile writes data to path via temp-file + fsync + rename, the
// same durability idiom internal/store/jsonstore.go uses for every on-disk
// file in SPEC_FULL.md §6's layout.
func writeAtomicFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.Fatal, "creating index directory", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errs.Wrap(errs.Fatal, "creating temp file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.Wrap(errs.Fatal, "writing temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.Wrap(errs.Fatal, "fsyncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.Fatal, "closing temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.Fatal, "renaming into place", err)
	}
	return nil
}
