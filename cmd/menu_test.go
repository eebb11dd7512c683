//go:build !integration

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tainan-eats/storedir/internal/reconcile"
)

func TestReadMenuFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "menu_data.json")
	body := `{"X1": {"store_name": "阿村牛肉湯", "items": [{"name": "牛肉湯", "price": 120, "confidence": "high"}]}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	data, err := readMenuFile(path)
	require.NoError(t, err)
	require.Contains(t, data, "X1")
	assert.Equal(t, "阿村牛肉湯", data["X1"].StoreName)
	assert.Len(t, data["X1"].Items, 1)
}

func TestReadMenuFile_Missing(t *testing.T) {
	_, err := readMenuFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestFormatMenuStats(t *testing.T) {
	var buf bytes.Buffer
	formatMenuStats(&buf, reconcile.MenuStats{Stores: 2, Inserted: 5, Existing: 1, Skipped: 3})
	out := buf.String()
	assert.Contains(t, out, "Inserted:")
	assert.Contains(t, out, "5")
	assert.Contains(t, out, "Already present:")
}
