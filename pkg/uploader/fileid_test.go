package uploader

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataFileID(t *testing.T) {
	mod := time.UnixMilli(1700000000123)
	id, err := MetadataFileID(NewBytesSource("a.txt", []byte("hello"), mod), 4)
	require.NoError(t, err)
	assert.Equal(t, "a.txt-5-1700000000123-4", id)

	other, err := MetadataFileID(NewBytesSource("a.txt", []byte("hello"), mod), 3)
	require.NoError(t, err)
	assert.NotEqual(t, id, other, "a different chunk layout gets its own chunk records")
}

func TestContentFileID(t *testing.T) {
	data := bytes.Repeat([]byte("x"), contentPrefixBytes+10)
	a, err := ContentFileID(NewBytesSource("a.bin", data, modTime), 1024)
	require.NoError(t, err)
	again, err := ContentFileID(NewBytesSource("a.bin", data, modTime.Add(time.Hour)), 1024)
	require.NoError(t, err)
	assert.Equal(t, a, again, "modification time does not change the identifier")

	renamed, err := ContentFileID(NewBytesSource("b.bin", data, modTime), 1024)
	require.NoError(t, err)
	assert.NotEqual(t, a, renamed)

	changed := append([]byte("y"), data[1:]...)
	other, err := ContentFileID(NewBytesSource("a.bin", changed, modTime), 1024)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	rechunked, err := ContentFileID(NewBytesSource("a.bin", data, modTime), 2048)
	require.NoError(t, err)
	assert.NotEqual(t, a, rechunked)

	assert.NotContains(t, a, "/")
}

func TestFileIDFuncFor(t *testing.T) {
	_, err := FileIDFuncFor("metadata")
	require.NoError(t, err)
	_, err = FileIDFuncFor("content")
	require.NoError(t, err)
	_, err = FileIDFuncFor("random")
	require.Error(t, err)
}
