package vmfs

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// byteVolume is a minimal accessor over a raw byte slice, enough for the
// parsing tests that never mount anything.
type byteVolume struct {
	data  []byte
	group UUID
}

func (v *byteVolume) Open() error  { return nil }
func (v *byteVolume) Close() error { return nil }

func (v *byteVolume) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(v.data)) {
		return 0, io.EOF
	}
	n := copy(p, v.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (v *byteVolume) GroupUUID() UUID { return v.group }
func (v *byteVolume) DebugLevel() int { return 0 }

func fsInfoImage(blockSize uint64) *byteVolume {
	data := make([]byte, fsInfoBase+fsInfoSize)
	writeLE32(data, fsInfoBase+fsInfoOfsMagic, fsMagic)
	writeLE32(data, fsInfoBase+fsInfoOfsVolVer, 21)
	data[fsInfoBase+fsInfoOfsVer] = 61
	copy(data[fsInfoBase+fsInfoOfsLabel:], "esx-datastore\x00")
	writeLE32(data, fsInfoBase+fsInfoOfsDevBlkSiz, 512)
	writeLE64(data, fsInfoBase+fsInfoOfsBlkSize, blockSize)
	for i := 0; i < 16; i++ {
		data[fsInfoBase+fsInfoOfsUUID+i] = byte(i + 1)
		data[fsInfoBase+fsInfoOfsLVMUUID+i] = byte(0xf0 - i)
	}
	return &byteVolume{data: data}
}

func TestReadFSInfo(t *testing.T) {
	vol := fsInfoImage(1 << 20)

	info, err := readFSInfo(vol)
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, uint32(fsMagic), info.Magic)
	assert.Equal(t, uint32(21), info.VolVersion)
	assert.Equal(t, uint8(61), info.Version)
	assert.Equal(t, "esx-datastore", info.Label)
	assert.Equal(t, uint32(512), info.DevBlkSize)
	assert.Equal(t, uint64(1<<20), info.BlockSize)
	assert.Equal(t, byte(1), info.UUID[0])
	assert.Equal(t, byte(0xf0), info.LVMUUID[0])
}

func TestReadFSInfoIsPure(t *testing.T) {
	vol := fsInfoImage(1 << 20)

	a, err := readFSInfo(vol)
	require.NoError(t, err)
	b, err := readFSInfo(vol)
	require.NoError(t, err)

	// Identical volume bytes always decode to an identical result.
	assert.Equal(t, a, b)
}

func TestReadFSInfoBadMagic(t *testing.T) {
	vol := fsInfoImage(1 << 20)
	vol.data[fsInfoBase] ^= 0xff

	info, err := readFSInfo(vol)
	require.ErrorIs(t, err, ErrInvalidMagic)
	require.ErrorIs(t, err, ErrInvalidFSInfo)
	assert.Nil(t, info)
}

func TestReadFSInfoBlockSize(t *testing.T) {
	tests := []struct {
		name      string
		blockSize uint64
		wantErr   error
	}{
		{"one mebibyte", 1 << 20, nil},
		{"zero", 0, ErrInvalidFSInfo},
		{"not a power of two", 3 << 20, ErrInvalidFSInfo},
		{"sixty four kibibytes", 64 << 10, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := readFSInfo(fsInfoImage(tt.blockSize))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, info)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.blockSize, info.BlockSize)
		})
	}
}

func TestReadFSInfoShortVolume(t *testing.T) {
	vol := &byteVolume{data: make([]byte, fsInfoBase+100)}

	_, err := readFSInfo(vol)
	require.ErrorIs(t, err, ErrShortRead)
}
