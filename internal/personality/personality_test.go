package personality

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.md")
	require.NoError(t, os.WriteFile(path, []byte("  You write for Acme.\n"), 0o600))

	require.Equal(t, "You write for Acme.", Load(path))
	require.Equal(t, Default, Load(filepath.Join(t.TempDir(), "missing.md")))
}

func TestLoadSearchesParents(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("Parent persona"), 0o600))
	chdir(t, nested)

	require.Equal(t, "Parent persona", Load(""))
}

func TestLoadEmptyFileFallsBack(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("\n  \n"), 0o600))
	chdir(t, dir)

	require.Equal(t, Default, Load(""))
}

func TestFindInParentsMissing(t *testing.T) {
	_, err := findInParents(t.TempDir(), "NOPE-"+FileName)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
