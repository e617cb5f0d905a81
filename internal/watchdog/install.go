package watchdog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Installer puts the daemon executable in place and returns its path.
type Installer interface {
	Install() (string, error)
}

// FileInstaller copies Source to Dest on every call. The old file is
// unlinked first so a daemon still running from it keeps its image.
type FileInstaller struct {
	Source string
	Dest   string
}

func (fi FileInstaller) Install() (string, error) {
	if err := os.MkdirAll(filepath.Dir(fi.Dest), 0o700); err != nil {
		return "", fmt.Errorf("failed to create install directory: %w", err)
	}

	if err := os.Remove(fi.Dest); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to remove old daemon executable: %w", err)
	}

	src, err := os.Open(fi.Source)
	if err != nil {
		return "", fmt.Errorf("failed to open daemon image: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(fi.Dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create daemon executable: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("failed to copy daemon image: %w", err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		return "", fmt.Errorf("failed to flush daemon executable: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("failed to close daemon executable: %w", err)
	}

	if err := os.Chmod(fi.Dest, 0o700); err != nil {
		return "", fmt.Errorf("failed to chmod daemon executable: %w", err)
	}

	return fi.Dest, nil
}
