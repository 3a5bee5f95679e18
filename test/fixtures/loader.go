package fixtures

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixturesDir returns the absolute path to the fixtures directory.
func fixturesDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Dir(file)
}

// ArtifactPath returns the path of a compiled contract artifact fixture,
// failing the test when it is missing.
func ArtifactPath(t *testing.T, filename string) string {
	t.Helper()
	path := filepath.Join(fixturesDir(), "artifacts", filename)
	_, err := os.Stat(path)
	require.NoError(t, err, "missing artifact fixture: %s", filename)
	return path
}

// LoadArtifact returns the raw bytes of an artifact fixture.
func LoadArtifact(t *testing.T, filename string) []byte {
	t.Helper()
	data, err := os.ReadFile(ArtifactPath(t, filename))
	require.NoError(t, err, "failed to load artifact fixture: %s", filename)
	return data
}
