package imagestore

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveBase64WritesContentAddressedFile(t *testing.T) {
	store := New(t.TempDir(), "")

	blob := []byte("jpeg-bytes")
	url, err := store.SaveBase64(base64.StdEncoding.EncodeToString(blob), "20250610")
	require.NoError(t, err)
	assert.Contains(t, url, "/static/snaps/20250610/")

	rel, ok := RelFromURL(url)
	require.True(t, ok)
	saved, err := os.ReadFile(store.LocalPath(rel))
	require.NoError(t, err)
	assert.Equal(t, blob, saved)
}

func TestSaveBase64DeduplicatesByContent(t *testing.T) {
	store := New(t.TempDir(), "")
	b64 := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))

	url1, err := store.SaveBase64(b64, "20250610")
	require.NoError(t, err)
	url2, err := store.SaveBase64(b64, "20250610")
	require.NoError(t, err)
	assert.Equal(t, url1, url2)

	files, err := os.ReadDir(filepath.Join(store.Root(), "20250610"))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	// same content on another day is its own file
	url3, err := store.SaveBase64(b64, "20250611")
	require.NoError(t, err)
	assert.NotEqual(t, url1, url3)
}

func TestSaveBase64NormalizesInput(t *testing.T) {
	store := New(t.TempDir(), "")
	plain := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))

	// data URI prefix, embedded whitespace and stripped padding all decode
	wrapped := "data:image/jpeg;base64," + plain[:8] + "\n " + plain[8:]
	url1, err := store.SaveBase64(wrapped, "20250610")
	require.NoError(t, err)

	url2, err := store.SaveBase64(stripPadding(plain), "20250610")
	require.NoError(t, err)
	assert.Equal(t, url1, url2)
}

// stripPadding drops base64 padding to exercise re-padding.
func stripPadding(s string) string {
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	return s
}

func TestSaveBase64RejectsGarbage(t *testing.T) {
	store := New(t.TempDir(), "")
	_, err := store.SaveBase64("!!!definitely not base64!!!", "20250610")
	assert.Error(t, err)
}

func TestSaveBase64PublicBase(t *testing.T) {
	store := New(t.TempDir(), "https://cdn.example.com/")
	url, err := store.SaveBase64(base64.StdEncoding.EncodeToString([]byte("x")), "20250610")
	require.NoError(t, err)
	assert.Contains(t, url, "https://cdn.example.com/snaps/20250610/")
}

func TestRelFromURL(t *testing.T) {
	rel, ok := RelFromURL("https://cdn.example.com/snaps/20250610/abcdef0123456789.jpg?sig=1")
	require.True(t, ok)
	assert.Equal(t, "snaps/20250610/abcdef0123456789.jpg", rel)

	rel, ok = RelFromURL("/static/snaps/20250610/abcdef0123456789.jpg")
	require.True(t, ok)
	assert.Equal(t, "snaps/20250610/abcdef0123456789.jpg", rel)

	_, ok = RelFromURL("")
	assert.False(t, ok)
	_, ok = RelFromURL("https://cdn.example.com/other/20250610/x.jpg")
	assert.False(t, ok)
}

func TestRemoveDayDirIfEmpty(t *testing.T) {
	store := New(t.TempDir(), "")

	url, err := store.SaveBase64(base64.StdEncoding.EncodeToString([]byte("x")), "20250610")
	require.NoError(t, err)

	// not empty yet
	require.NoError(t, store.RemoveDayDirIfEmpty("20250610"))
	_, err = os.Stat(filepath.Join(store.Root(), "20250610"))
	assert.NoError(t, err)

	rel, _ := RelFromURL(url)
	require.NoError(t, os.Remove(store.LocalPath(rel)))
	require.NoError(t, store.RemoveDayDirIfEmpty("20250610"))
	_, err = os.Stat(filepath.Join(store.Root(), "20250610"))
	assert.True(t, os.IsNotExist(err))

	// a day that never existed is fine
	require.NoError(t, store.RemoveDayDirIfEmpty("19990101"))
}
