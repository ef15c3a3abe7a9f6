package vmfs_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmfstools/govmfs/internal/imagetest"
	"github.com/vmfstools/govmfs/pkg/vmfs"
)

func readFile(t *testing.T, fs *vmfs.FileSystem, path string) []byte {
	t.Helper()
	f, err := fs.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, f.Size())
	_, err = io.ReadFull(f, buf)
	require.NoError(t, err)
	return buf
}

func TestReadFileContents(t *testing.T) {
	fs, _ := mountImage(t, imagetest.Build())

	tests := []struct {
		name string
		path string
		want []byte
	}{
		{"descriptor resident", "config.txt", imagetest.ConfigContent},
		{"sub block", "notes.txt", imagetest.NotesContent},
		{"file blocks", "flat.vmdk", imagetest.FlatContent()},
		{"pointer block", "large.bin", imagetest.LargeContent()},
		{"nested resident", "vm1/vm1.vmx", imagetest.VMXContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readFile(t, fs, tt.path))
		})
	}
}

func TestReadAtAcrossBlockBoundary(t *testing.T) {
	fs, _ := mountImage(t, imagetest.Build())

	f, err := fs.OpenFile("flat.vmdk")
	require.NoError(t, err)
	defer f.Close()

	// Straddle the first file block boundary.
	buf := make([]byte, 8192)
	off := int64(imagetest.BlockSize - 4096)
	n, err := f.ReadAt(buf, off)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	assert.Equal(t, imagetest.FlatContent()[off:off+8192], buf)
}

func TestReadPastEOF(t *testing.T) {
	fs, _ := mountImage(t, imagetest.Build())

	f, err := fs.OpenFile("config.txt")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 4096)
	n, err := f.ReadAt(buf, 0)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, len(imagetest.ConfigContent), n)
	assert.Equal(t, imagetest.ConfigContent, buf[:n])

	n, err = f.ReadAt(buf, f.Size()+1)
	assert.Equal(t, io.EOF, err)
	assert.Zero(t, n)
}

func TestSeekAndRead(t *testing.T) {
	fs, _ := mountImage(t, imagetest.Build())

	f, err := fs.OpenFile("notes.txt")
	require.NoError(t, err)
	defer f.Close()

	pos, err := f.Seek(9, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(9), pos)

	buf := make([]byte, 4)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, imagetest.NotesContent[9:13], buf[:n])

	// The cursor advanced; a relative seek lands accordingly.
	pos, err = f.Seek(-2, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(11), pos)

	pos, err = f.Seek(-1, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, f.Size()-1, pos)

	_, err = f.Seek(-100, io.SeekStart)
	assert.Error(t, err)
}

func TestFileCloseIsIdempotent(t *testing.T) {
	fs, _ := mountImage(t, imagetest.Build())

	f, err := fs.OpenFile("config.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = f.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, vmfs.ErrClosed)

	var nilFile *vmfs.File
	require.NoError(t, nilFile.Close())
}

func TestReadDirRoot(t *testing.T) {
	fs, _ := mountImage(t, imagetest.Build())

	entries, err := fs.ReadDir("/")
	require.NoError(t, err)

	byName := make(map[string]vmfs.DirEntry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}

	require.Contains(t, byName, "vm1")
	assert.True(t, byName["vm1"].IsDir())

	require.Contains(t, byName, "config.txt")
	assert.Equal(t, uint32(vmfs.FileTypeFile), byName["config.txt"].Type)
	assert.False(t, byName["config.txt"].IsDir())

	// The allocator metafiles are ordinary directory entries.
	for _, name := range []string{".fbb.sf", ".fdc.sf", ".pbc.sf", ".sbc.sf"} {
		require.Contains(t, byName, name)
		assert.Equal(t, uint32(vmfs.FileTypeMeta), byName[name].Type)
	}
}

func TestReadDirNested(t *testing.T) {
	fs, _ := mountImage(t, imagetest.Build())

	entries, err := fs.ReadDir("vm1")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{".", "..", "vm1.vmx"}, names)
}

func TestPathResolution(t *testing.T) {
	fs, _ := mountImage(t, imagetest.Build())

	// Leading and trailing slashes are accepted.
	for _, path := range []string{"vm1/vm1.vmx", "/vm1/vm1.vmx", "/vm1/vm1.vmx/"} {
		f, err := fs.OpenFile(path)
		require.NoError(t, err, path)
		f.Close()
	}

	_, err := fs.OpenFile("missing.txt")
	assert.ErrorIs(t, err, vmfs.ErrNotFound)

	_, err = fs.OpenFile("vm1/missing.vmx")
	assert.ErrorIs(t, err, vmfs.ErrNotFound)

	// A file is not a directory to descend into.
	_, err = fs.OpenFile("config.txt/x")
	assert.ErrorIs(t, err, vmfs.ErrNotFound)

	_, err = fs.ReadDir("config.txt")
	assert.Error(t, err)
}

func TestOpenFileRootPath(t *testing.T) {
	fs, _ := mountImage(t, imagetest.Build())

	for _, path := range []string{"", "/"} {
		f, err := fs.OpenFile(path)
		require.NoError(t, err)
		assert.Equal(t, uint32(vmfs.FileTypeDir), f.Inode().Type)
		f.Close()
	}
}
