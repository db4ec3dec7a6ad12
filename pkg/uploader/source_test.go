package uploader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, "data.bin", f.Name())
	assert.Equal(t, int64(10), f.Size())
	assert.False(t, f.ModTime().IsZero())

	buf := make([]byte, 3)
	_, err = f.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "456", string(buf))

	_, err = OpenFile(dir)
	assert.Error(t, err)
	_, err = OpenFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLocalFileUploadEndToEnd(t *testing.T) {
	ts := newTestServer(t, 0)
	path := filepath.Join(t.TempDir(), "local.txt")
	require.NoError(t, os.WriteFile(path, []byte("local file contents"), 0o644))
	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	api := newTestClient(ts.apiURL())
	dispatcher := NewDispatcher(api, NewChunkScheduler(api, SchedulerOptions{ChunkSize: 5, ParallelLimit: 3, FileID: ContentFileID}), 4)
	_, err = NewTask(dispatcher, ValidationRules{AcceptedTypes: "text/*"}).Start(bg, []Source{f}, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(ts.artifacts.Path("local.txt"))
	require.NoError(t, err)
	assert.Equal(t, "local file contents", string(data))
}
