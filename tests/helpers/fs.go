package helpers

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/labstack/gommon/random"
	"github.com/stretchr/testify/assert"
	gassert "gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

// TempDirWithFiles creates a temporary directory containing a file for
// each of the names provided, each filled with random content. The directory
// and the absolute paths of the files are returned.
func TempDirWithFiles(t *testing.T, files []string) (string, []string) {
	dirPath := t.TempDir()
	filePaths := make([]string, 0, len(files))
	for _, filename := range files {
		path := filepath.Join(dirPath, filename)
		err := os.WriteFile(path, []byte(random.String(64)), 0o644)
		assert.Nil(t, err, "failed to create temporary file in temporary dir")
		filePaths = append(filePaths, path)
	}

	assert.Len(t, filePaths, len(files), "Expected file paths recorded to match length of requested files")
	return dirPath, filePaths
}

// RandomName returns a random alphanumeric name with the given suffix, suitable for
// unique file names and URLs inside of tests.
func RandomName(suffix string) string {
	return random.String(12, random.Lowercase, random.Numeric) + suffix
}

// ListDir returns the sorted names of all the entries in the directory, recursing
// in to any sub directories (paths are relative to the directory given).
func ListDir(t *testing.T, dir string) []string {
	names := make([]string, 0)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}

		rel, _ := filepath.Rel(dir, path)
		names = append(names, rel)
		return nil
	})
	gassert.NilError(t, err)

	sort.Strings(names)
	return names
}

// AssertDirEmpty fails the test if the directory contains any entries.
func AssertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	gassert.Assert(t, cmp.Len(ListDir(t, dir), 0), "expected directory %s to be empty", dir)
}

// AssertDirContainsOnly fails the test unless the directory contains exactly the
// entries provided.
func AssertDirContainsOnly(t *testing.T, dir string, names ...string) {
	t.Helper()
	sort.Strings(names)
	gassert.DeepEqual(t, names, ListDir(t, dir))
}
