package addressbook

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
)

// dataDirMode is rwxrwx---.
const dataDirMode fs.FileMode = 0770

// InitDataDir creates dir and its parents if absent. A newly created
// directory is restricted to owner and group on non-Windows systems;
// failing to do so is logged, not returned.
func InitDataDir(dir string, log *slog.Logger) error {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if dir == "" {
		return ErrNoDataDir
	}
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("data directory %s exists and is not a directory", dir)
	case err == nil:
		log.Info("data directory ready", "dir", dir, "created", false)
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to stat data directory: %w", err)
	}

	if err := os.MkdirAll(dir, dataDirMode); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	log.Info("data directory ready", "dir", dir, "created", true)
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(dir, dataDirMode); err != nil {
		log.Error("failed to restrict data directory permissions", "dir", dir, "error", err)
	}
	return nil
}
