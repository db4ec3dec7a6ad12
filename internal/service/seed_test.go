package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chunkvault/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedFromDir(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	big := strings.Repeat("x", int(seedChunkSize)+10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.bin"), []byte(big), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "small.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("no"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	n, err := SeedFromDir(context.Background(), env.svc, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err := env.svc.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.FileItem{
		{Name: "big.bin", Size: int64(len(big))},
		{Name: "empty.txt", Size: 0},
		{Name: "small.txt", Size: 2},
	}, list.Files)
	assert.Equal(t, int32(2), env.store.merges.Load())

	n, err = SeedFromDir(context.Background(), env.svc, dir)
	require.NoError(t, err)
	assert.Zero(t, n, "second run skips existing files")
}

func TestSeedFromDir_MissingDir(t *testing.T) {
	env := newTestEnv(t)
	n, err := SeedFromDir(context.Background(), env.svc, filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Zero(t, n)
}
