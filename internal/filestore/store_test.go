package filestore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/proposal/internal/config"
	appErr "github.com/xxxsen/proposal/internal/pkg/errors"
)

func TestNewUnknownType(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "ftp"})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{})
	require.Error(t, err)
}

func TestLocalSaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)
	assert.Equal(t, "local", store.Type())

	data := []byte("cv body")
	require.NoError(t, store.Save(context.Background(), "u1/cv.txt", bytes.NewReader(data), int64(len(data)), "text/plain"))
	_, err = os.Stat(filepath.Join(dir, "u1", "cv.txt"))
	require.NoError(t, err)

	rc, err := store.Open(context.Background(), "u1/cv.txt")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestLocalSaveShortWrite(t *testing.T) {
	dir := t.TempDir()
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)
	err = store.Save(context.Background(), "a.txt", bytes.NewReader([]byte("ab")), 5, "")
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "a.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCleanKey(t *testing.T) {
	for _, bad := range []string{"", "/abs", "../x", "a/../b", "a//b", `a\b`, "a/./b"} {
		_, err := CleanKey(bad)
		assert.ErrorIs(t, err, appErr.ErrInvalid, bad)
	}
	key, err := CleanKey("u1/abc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "u1/abc.pdf", key)
}

func TestS3RequiresBucket(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "s3", Data: map[string]interface{}{"region": "us-east-1"}})
	require.Error(t, err)
}

func TestS3ObjectKeyPrefix(t *testing.T) {
	store, err := New(config.FileStoreConfig{Type: "s3", Data: map[string]interface{}{
		"bucket":     "cvs",
		"prefix":     "/uploads/",
		"region":     "us-east-1",
		"access_key": "ak",
		"secret_key": "sk",
		"endpoint":   "http://127.0.0.1:9000",
		"path_style": true,
	}})
	require.NoError(t, err)
	s := store.(*s3Store)
	key, err := s.objectKey("u1/cv.pdf")
	require.NoError(t, err)
	assert.Equal(t, "uploads/u1/cv.pdf", key)
}
