// Package backup keeps the previous version of a configuration file next to
// it as "<file>.old" before the file is replaced or removed.
package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const Suffix = ".old"

// Path returns the backup location of path.
func Path(path string) string {
	return path + Suffix
}

// Keep copies path to its backup location. A missing path is not an error.
func Keep(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("backup %s: is a directory", path)
	}
	if err := copyFile(path, Path(path), info.Mode().Perm()); err != nil {
		return fmt.Errorf("backup %s: %w", path, err)
	}
	slog.Debug("backup kept", "src", path, "dest", Path(path))
	return nil
}

// WriteFile replaces path with data. The previous content is kept as a
// backup and the new content is renamed into place, so readers never see a
// partial file.
func WriteFile(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if err := Keep(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Remove moves path to its backup location.
func Remove(path string) error {
	if err := os.Rename(path, Path(path)); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	slog.Info("config file removed", "path", path, "backup", Path(path))
	return nil
}

func copyFile(src, dest string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
