// Package fileutil holds small filesystem helpers shared by the compile
// pipeline.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// WriteOutput replaces path with data. The bytes go to a staging file in the
// same directory which is renamed over path once complete, so readers never
// observe a truncated output and a failed write leaves the old one intact. A
// new file gets mode regardless of umask; a replaced file keeps its previous
// permission bits. A symlink at path is written through in place. created
// reports whether path did not exist beforehand.
func WriteOutput(path string, data []byte, mode os.FileMode) (created bool, err error) {
	info, statErr := os.Lstat(path)
	switch {
	case statErr == nil:
		if info.Mode()&fs.ModeSymlink != 0 {
			return false, os.WriteFile(path, data, mode)
		}
		mode = info.Mode().Perm()
	case errors.Is(statErr, fs.ErrNotExist):
		created = true
	default:
		return false, statErr
	}

	tmp, err := StagingFile(path)
	if err != nil {
		return false, fmt.Errorf("stage %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if err = writeSynced(tmp, data); err != nil {
		return false, fmt.Errorf("write %s: %w", tmp, err)
	}
	if err = os.Chmod(tmp, mode); err != nil {
		return false, fmt.Errorf("set permissions on %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return false, fmt.Errorf("replace %s: %w", path, err)
	}
	return created, nil
}

func writeSynced(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// EnsureDir creates dir and its parents. A newly created leaf directory is
// chmod'ed to mode; an existing one is left alone.
func EnsureDir(dir string, mode os.FileMode) error {
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", dir)
		}
		return nil
	}
	if err := os.MkdirAll(dir, mode); err != nil {
		return err
	}
	return os.Chmod(filepath.Clean(dir), mode)
}

const stagingSuffix = ".tmp"

// StagingFile reserves an empty hidden file next to target for a writer
// that must not touch target until it has succeeded.
func StagingFile(target string) (string, error) {
	file, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*"+stagingSuffix)
	if err != nil {
		return "", err
	}
	name := file.Name()
	if err := file.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// IsStagingFile reports whether name looks like a file made by StagingFile.
func IsStagingFile(name string) bool {
	return len(name) > len(stagingSuffix)+1 && strings.HasPrefix(name, ".") && strings.HasSuffix(name, stagingSuffix)
}
