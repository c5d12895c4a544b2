// Package atomicjson persists JSON state files with whole-file
// rewrite-on-write semantics: readers either see the previous complete
// file or the new complete file, never a partial write.
package atomicjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads the JSON file at path into v. A missing file surfaces as
// fs.ErrNotExist via os.ReadFile so callers can start from a default.
func Load(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("atomicjson: decode %s: %w", path, err)
	}
	return nil
}

// Save writes v as indented JSON to path via a uniquely named temp file in
// the same directory, fsync, then rename. Overlapping writers cannot
// collide on the temp name and a crash never leaves a torn file visible.
func Save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("atomicjson: encode %s: %w", path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
