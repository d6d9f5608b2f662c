package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hbomb79/Reel/internal/media"
)

const maxNameCollisions = 1000

// publish moves the file at srcPath in to the output directory using the name
// given. If the name is taken a numeric suffix is added. The destination is
// reserved before the move so that concurrent jobs never overwrite each
// other's output. If the move fails, nothing is left in the output directory.
func publish(srcPath string, outputDir string, name string) (string, error) {
	if err := os.MkdirAll(outputDir, os.ModeDir|0o755); err != nil {
		return "", diskError(srcPath, fmt.Errorf("cannot create output directory: %w", err))
	}

	destPath, err := reserveDestination(outputDir, name)
	if err != nil {
		return "", diskError(srcPath, err)
	}

	if err := os.Rename(srcPath, destPath); err == nil {
		return destPath, nil
	}

	// Rename fails across filesystems (e.g. scratch dir on tmpfs), fallback
	// to a copy in to the reserved destination.
	if err := copyFile(srcPath, destPath); err != nil {
		os.Remove(destPath)
		return "", diskError(srcPath, err)
	}
	if err := os.Remove(srcPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("Published %s but failed to remove source %s: %v\n", destPath, srcPath, err)
	}

	return destPath, nil
}

func reserveDestination(outputDir string, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 0; i < maxNameCollisions; i++ {
		candidate := filepath.Join(outputDir, name)
		if i > 0 {
			candidate = filepath.Join(outputDir, fmt.Sprintf("%s-%d%s", base, i, ext))
		}

		file, err := os.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			if err := file.Close(); err != nil {
				os.Remove(candidate)
				return "", err
			}

			return candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
	}

	return "", fmt.Errorf("could not find a free name for %s in %s", name, outputDir)
}

func copyFile(srcPath string, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		return err
	}
	if err := dest.Sync(); err != nil {
		dest.Close()
		return err
	}

	return dest.Close()
}

func diskError(path string, err error) error {
	return &media.FetchError{Kind: media.Disk, SourceURL: path, Err: err}
}
