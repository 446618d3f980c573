// Package diskutil holds small filesystem helpers, used by the
// node-identity package: traversal-safe reads and atomic, create-once
// writes.
package diskutil

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ReadFileByPath reads path after splitting it into dir+name and
// re-validating name is a plain file within dir (no traversal).
func ReadFileByPath(path string) ([]byte, error) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	return ReadFileFromDir(dir, name)
}

// ReadFileFromDir reads name from dir, rejecting any name that is not a
// single path component.
func ReadFileFromDir(dir, name string) ([]byte, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid file name: %q", name)
	}
	return fs.ReadFile(os.DirFS(dir), name)
}

// WriteFileIfAbsent creates path with content if it does not exist. If it
// already exists, the existing bytes must equal content or the call
// fails: content-addressed stores should never see two different
// payloads claim the same key.
func WriteFileIfAbsent(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err == nil {
		_, writeErr := f.Write(content)
		closeErr := f.Close()
		if writeErr != nil {
			_ = os.Remove(path)
			return writeErr
		}
		if closeErr != nil {
			_ = os.Remove(path)
			return closeErr
		}
		return nil
	}
	if !os.IsExist(err) {
		return err
	}
	existing, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !bytes.Equal(existing, content) {
		return fmt.Errorf("file already exists with different content: %s", path)
	}
	return nil
}

// WriteFileAtomic writes content to path via a temp file in the same
// directory followed by rename, so readers never observe a partial
// write.
func WriteFileAtomic(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
