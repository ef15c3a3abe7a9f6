package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmfstools/govmfs/internal/imagetest"
	"github.com/vmfstools/govmfs/pkg/vmfs"
)

func builtCatalog(t *testing.T) (*Catalog, int) {
	t.Helper()

	fs := vmfs.Create(imagetest.NewMemVolume(imagetest.Build()))
	require.NoError(t, fs.Open())
	t.Cleanup(func() { fs.Close() })

	cat, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	n, err := cat.Build(fs)
	require.NoError(t, err)
	return cat, n
}

func TestBuildAndGet(t *testing.T) {
	cat, n := builtCatalog(t)

	// Four metafiles, one directory, four root files, one nested file.
	assert.Equal(t, 10, n)

	rec, err := cat.Get("/config.txt")
	require.NoError(t, err)
	assert.Equal(t, "file", rec.Type)
	assert.Equal(t, int64(len(imagetest.ConfigContent)), rec.Size)
	assert.NotZero(t, rec.Mtime)
	assert.NotZero(t, rec.BlockID)

	// Paths are normalized, a missing leading slash still resolves.
	rec, err = cat.Get("vm1/vm1.vmx")
	require.NoError(t, err)
	assert.Equal(t, "/vm1/vm1.vmx", rec.Path)

	_, err = cat.Get("/missing.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestList(t *testing.T) {
	cat, _ := builtCatalog(t)

	all, err := cat.List("/")
	require.NoError(t, err)
	assert.Len(t, all, 10)

	nested, err := cat.List("/vm1")
	require.NoError(t, err)
	require.Len(t, nested, 2)
	assert.Equal(t, "/vm1", nested[0].Path)
	assert.Equal(t, "dir", nested[0].Type)
	assert.Equal(t, "/vm1/vm1.vmx", nested[1].Path)
}

func TestFilesystemRecord(t *testing.T) {
	cat, _ := builtCatalog(t)

	info, err := cat.Filesystem()
	require.NoError(t, err)
	assert.Equal(t, "datastore1", info.Label)
	assert.Equal(t, uint64(imagetest.BlockSize), info.BlockSize)
	assert.NotEmpty(t, info.UUID)
}

func TestFilesystemRecordMissing(t *testing.T) {
	cat, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	defer cat.Close()

	_, err = cat.Filesystem()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build the catalog first")
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Options{})
	require.Error(t, err)
}

func TestOpenPersistent(t *testing.T) {
	dir := t.TempDir()

	cat, err := Open(Options{Path: dir})
	require.NoError(t, err)
	require.NoError(t, cat.Close())

	// Reopen: badger recovers the directory.
	cat, err = Open(Options{Path: dir})
	require.NoError(t, err)
	require.NoError(t, cat.Close())

	var nilCat *Catalog
	require.NoError(t, nilCat.Close())
}
