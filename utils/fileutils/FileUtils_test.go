package fileutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadGob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.bin")

	saved := map[string]float64{"steps": 12, "return": -3.5}
	require.NoError(t, SaveGob(path, saved))

	var loaded map[string]float64
	require.NoError(t, LoadGob(path, &loaded))
	assert.Equal(t, saved, loaded)
}

func TestLoadGobMissingFile(t *testing.T) {
	var loaded map[string]float64
	err := LoadGob(filepath.Join(t.TempDir(), "missing.bin"), &loaded)
	assert.Error(t, err)
}

func TestNewRunDir(t *testing.T) {
	base := t.TempDir()

	first, err := NewRunDir(base, "train")
	require.NoError(t, err)
	second, err := NewRunDir(base, "train")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	for _, dir := range []string{first, second} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.True(t, strings.HasPrefix(filepath.Base(dir), "train-"))
	}
}

func TestTimestampedFilename(t *testing.T) {
	filename := TimestampedFilename("runs", "snapshot", ".bin")

	name := filename()
	assert.Equal(t, "runs", filepath.Dir(name))
	assert.True(t, strings.HasPrefix(filepath.Base(name), "snapshot-"))
	assert.True(t, strings.HasSuffix(name, ".bin"))
}
