package helpers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TempDirWithFiles creates a temporary directory containing one empty file
// per provided name, returning the directory and the created file paths.
// Files keep the exact names given so tests can rely on deterministic paths.
func TempDirWithFiles(t *testing.T, files []string) (string, []string) {
	dirPath := t.TempDir()
	filePaths := make([]string, 0, len(files))
	for _, filename := range files {
		path := filepath.Join(dirPath, filename)
		assert.Nil(t, os.WriteFile(path, nil, 0o644), "failed to create file in temporary dir")
		filePaths = append(filePaths, path)
	}

	return dirPath, filePaths
}

// TempDirWithExecutables creates a temporary directory containing one
// executable script per entry in the provided map, returning the directory
// and the path of each script keyed by its name. Useful for standing in for
// external binaries the code under test spawns.
func TempDirWithExecutables(t *testing.T, scripts map[string]string) (string, map[string]string) {
	dirPath := t.TempDir()
	paths := make(map[string]string, len(scripts))
	for name, script := range scripts {
		path := filepath.Join(dirPath, name)
		assert.Nil(t, os.WriteFile(path, []byte(script), 0o755), "failed to create executable in temporary dir")
		paths[name] = path
	}

	return dirPath, paths
}
