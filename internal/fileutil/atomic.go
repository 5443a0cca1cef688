package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// ReplaceFile atomically replaces the file at path with data. The bytes land
// in a sibling temp file first (rename is atomic only within a filesystem),
// which is then renamed over path. On any failure the temp file is removed
// and the previous contents of path stay intact, so concurrent readers never
// observe a partial document.
func ReplaceFile(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := SecureOpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
