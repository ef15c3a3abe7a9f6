package vmfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatEnd(t *testing.T) {
	assert.Equal(t, uint64(0x400000), heartbeatEnd())
}

func TestDescriptorBase(t *testing.T) {
	tests := []struct {
		name      string
		hbEnd     uint64
		blockSize uint64
		want      uint64
	}{
		{
			name:      "heartbeat end dominates",
			hbEnd:     0x400000,
			blockSize: 1 << 20,
			want:      0x400000,
		},
		{
			name:      "block size dominates",
			hbEnd:     0x400000,
			blockSize: 8 << 20,
			want:      8 << 20,
		},
		{
			name:      "small heartbeat region",
			hbEnd:     64 << 10,
			blockSize: 1 << 20,
			want:      1 << 20,
		},
		{
			name:      "equal",
			hbEnd:     4 << 20,
			blockSize: 4 << 20,
			want:      4 << 20,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := descriptorBase(tt.hbEnd, tt.blockSize)
			assert.Equal(t, tt.want, got)
			// The descriptor metafile always starts on a block boundary
			// for any power-of-two block size up to the heartbeat end.
			assert.Zero(t, got%tt.blockSize)
		})
	}
}

func TestSyntheticDescriptorInode(t *testing.T) {
	const blockSize = 1 << 20
	img := syntheticDescriptorInode(blockSize, 4<<20)
	require.Len(t, img, inodeSize)

	ino, err := decodeInode(img)
	require.NoError(t, err)

	assert.Equal(t, uint32(FileTypeMeta), ino.Type)
	assert.Equal(t, uint64(blockSize), ino.Size)
	assert.Equal(t, blkFB(4), ino.Blocks[0])

	// The fabricated inode leaves the addressing mode unset; binding it
	// must still address whole file blocks.
	assert.Equal(t, uint32(blkTypeNone), ino.ZLA)
}

func TestDecodeInodeRejectsBadType(t *testing.T) {
	img := make([]byte, inodeSize)
	writeLE32(img, inodeOfsType, 0x17)

	_, err := decodeInode(img)
	require.ErrorIs(t, err, ErrInodeBind)
}

func TestDecodeInodeRejectsShortImage(t *testing.T) {
	_, err := decodeInode(make([]byte, 0x200))
	require.ErrorIs(t, err, ErrInodeBind)
}
