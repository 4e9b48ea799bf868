package cache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pack-design-backend/internal/cache"
)

func TestHashTextIsStable(t *testing.T) {
	assert.Equal(t, cache.HashText("jar prompt"), cache.HashText("jar prompt"))
	assert.NotEqual(t, cache.HashText("jar prompt"), cache.HashText("bottle prompt"))
	assert.Len(t, cache.HashText("jar prompt"), 64)
	assert.Equal(t, cache.HashText("abc"), cache.HashBytes([]byte("abc")))
}

func TestPutGetJSONRoundTrip(t *testing.T) {
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)

	payload := map[string]string{"cad_code": "import cadquery as cq"}
	require.NoError(t, c.PutJSON("cadstep", cache.HashText("key"), payload))

	var out map[string]string
	assert.True(t, c.GetJSON("cadstep", cache.HashText("key"), &out))
	assert.Equal(t, payload, out)

	assert.False(t, c.GetJSON("cadstep", cache.HashText("other"), &out))
}

func TestGetImageMissOnEmptyDataURL(t *testing.T) {
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.PutImage("concept", "k1", "img-1", ""))
	_, ok := c.GetImage("concept", "k1")
	assert.False(t, ok)

	require.NoError(t, c.PutImage("concept", "k2", "img-2", "data:image/png;base64,AAAA"))
	entry, ok := c.GetImage("concept", "k2")
	require.True(t, ok)
	assert.Equal(t, "img-2", entry.ImageID)
	assert.Equal(t, "data:image/png;base64,AAAA", entry.ImageDataURL)
}

func TestGetImageSynthesizesMissingID(t *testing.T) {
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.PutImage("edit", "abcdef1234", "", "data:image/png;base64,AAAA"))
	entry, ok := c.GetImage("edit", "abcdef1234")
	require.True(t, ok)
	assert.Equal(t, "cached-edit-abcdef12", entry.ImageID)
}

func TestClearAllCountsFilesAcrossDirs(t *testing.T) {
	dir := t.TempDir()
	extra := filepath.Join(dir, "cad_runs")
	require.NoError(t, os.MkdirAll(filepath.Join(extra, "run-1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(extra, "run-1", "out.step"), []byte("step"), 0o644))

	cacheDir := filepath.Join(dir, "cache")
	c, err := cache.New(cacheDir, extra)
	require.NoError(t, err)
	require.NoError(t, c.PutImage("concept", "k", "img", "data:image/png;base64,AAAA"))
	require.NoError(t, c.PutJSON("cadstep", "k", map[string]string{"a": "b"}))

	removed, err := c.ClearAll()
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	_, ok := c.GetImage("concept", "k")
	assert.False(t, ok)
	_, err = os.Stat(filepath.Join(extra, "run-1"))
	assert.True(t, os.IsNotExist(err), "emptied run directory should be pruned")
}

func TestKeySanitization(t *testing.T) {
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.PutJSON("concept", "../weird key", map[string]int{"v": 1}))
	var out map[string]int
	assert.True(t, c.GetJSON("concept", "../weird key", &out))
	assert.Equal(t, 1, out["v"])
}
