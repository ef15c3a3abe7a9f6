package volume_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmfstools/govmfs/internal/imagetest"
	"github.com/vmfstools/govmfs/pkg/vmfs"
	"github.com/vmfstools/govmfs/pkg/volume"
)

func writeExtents(t *testing.T, data []byte, splits ...int) []string {
	t.Helper()
	dir := t.TempDir()
	bounds := append(append([]int{0}, splits...), len(data))
	paths := make([]string, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		p := filepath.Join(dir, "extent"+string(rune('a'+i)))
		require.NoError(t, os.WriteFile(p, data[bounds[i]:bounds[i+1]], 0o644))
		paths = append(paths, p)
	}
	return paths
}

func TestFileVolumeSingleExtent(t *testing.T) {
	img := imagetest.Build()
	vol := volume.NewFile(writeExtents(t, img.Data), 0)

	require.NoError(t, vol.Open())
	defer vol.Close()

	assert.Equal(t, img.GroupUUID, vol.GroupUUID())
	require.NotNil(t, vol.Info())
	assert.Equal(t, "naa.600508b1001c6a2f", vol.Info().Name)
}

func TestFileVolumeReadAcrossExtents(t *testing.T) {
	img := imagetest.Build()
	const split = 8 << 20
	vol := volume.NewFile(writeExtents(t, img.Data, split), 0)

	require.NoError(t, vol.Open())
	defer vol.Close()

	// A read straddling the extent boundary stitches both files together.
	buf := make([]byte, 8192)
	n, err := vol.ReadAt(buf, split-4096)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	assert.Equal(t, img.Data[split-4096:split+4096], buf)
}

func TestFileVolumeReadPastEnd(t *testing.T) {
	img := imagetest.Build()
	vol := volume.NewFile(writeExtents(t, img.Data), 0)

	require.NoError(t, vol.Open())
	defer vol.Close()

	buf := make([]byte, 100)
	n, err := vol.ReadAt(buf, int64(len(img.Data))-50)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 50, n)
}

func TestFileVolumeErrors(t *testing.T) {
	vol := volume.NewFile(nil, 0)
	require.Error(t, vol.Open())

	vol = volume.NewFile([]string{filepath.Join(t.TempDir(), "missing")}, 0)
	require.Error(t, vol.Open())

	_, err := vol.ReadAt(make([]byte, 1), 0)
	require.Error(t, err)

	require.NoError(t, vol.Close())
	require.NoError(t, vol.Close())
}

func TestMountOverFileVolume(t *testing.T) {
	img := imagetest.Build()
	vol := volume.NewFile(writeExtents(t, img.Data, 6<<20), 0)

	fs := vmfs.Create(vol)
	require.NoError(t, fs.Open())
	defer fs.Close()

	assert.Equal(t, img.Label, fs.Info().Label)

	f, err := fs.OpenFile("flat.vmdk")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, f.Size())
	_, err = io.ReadFull(f, buf)
	require.NoError(t, err)
	assert.Equal(t, imagetest.FlatContent(), buf)
}
