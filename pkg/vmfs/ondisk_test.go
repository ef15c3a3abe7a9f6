package vmfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockIDPacking(t *testing.T) {
	tests := []struct {
		name  string
		id    uint32
		typ   uint32
		entry uint32
		item  uint32
	}{
		{
			name: "file block",
			id:   blkFB(1234),
			typ:  blkTypeFB,
			item: 1234,
		},
		{
			name: "file block zero",
			id:   blkFB(0),
			typ:  blkTypeFB,
			item: 0,
		},
		{
			name:  "file descriptor",
			id:    blkFD(512, 63),
			typ:   blkTypeFD,
			entry: 512,
			item:  63,
		},
		{
			name:  "file descriptor entry only",
			id:    blkFD(0xffff, 0),
			typ:   blkTypeFD,
			entry: 0xffff,
			item:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, blkType(tt.id))
			switch tt.typ {
			case blkTypeFB:
				assert.Equal(t, tt.item, blkFBItem(tt.id))
			case blkTypeFD:
				assert.Equal(t, tt.entry, blkFDEntry(tt.id))
				assert.Equal(t, tt.item, blkFDItem(tt.id))
			}
		})
	}
}

func TestBlockIDSubAndPointerFields(t *testing.T) {
	// Sub blocks and pointer blocks share the same field packing, only the
	// type tag differs.
	id := uint32(blkTypeSB) | 0x3fffff<<6 | 0xf<<28
	assert.Equal(t, uint32(blkTypeSB), blkType(id))
	assert.Equal(t, uint32(0x3fffff), blkSBEntry(id))
	assert.Equal(t, uint32(0xf), blkSBItem(id))

	id = uint32(blkTypePB) | 7<<6 | 2<<28
	assert.Equal(t, uint32(blkTypePB), blkType(id))
	assert.Equal(t, uint32(7), blkSBEntry(id))
	assert.Equal(t, uint32(2), blkSBItem(id))
}

func TestCString(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"terminated", []byte("datastore1\x00garbage"), "datastore1"},
		{"unterminated", []byte("abc"), "abc"},
		{"empty", []byte{0, 'x'}, ""},
		{"all zero", make([]byte, 8), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cString(tt.in))
		})
	}
}

func TestUUIDString(t *testing.T) {
	u := uuidFrom([]byte{
		0x4f, 0xc3, 0x1d, 0x52, 0x78, 0x56, 0x34, 0x12,
		0xcd, 0xab, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
	})
	// Dword groups render little-endian, trailing bytes as-is.
	assert.Equal(t, "521dc34f-12345678-abcd-001122334455", u.String())
}

func TestUUIDIsZero(t *testing.T) {
	var zero UUID
	assert.True(t, zero.IsZero())
	assert.False(t, uuidFrom([]byte{1}).IsZero())
}

func TestBitmapHeaderAddressing(t *testing.T) {
	h := BitmapHeader{
		ItemsPerEntry:  16,
		EntriesPerArea: 2,
		HdrSize:        0x1000,
		DataSize:       0x800,
		AreaSize:       2*0x400 + 32*0x800,
		TotalItems:     64,
		AreaCount:      2,
	}

	assert.Equal(t, int64(0x1000), h.AreaAddr(0))
	assert.Equal(t, int64(0x1000)+int64(h.AreaSize), h.AreaAddr(1))

	// Payload begins past the area's entry records.
	assert.Equal(t, int64(0x1800), h.AreaDataAddr(0))

	// Items are laid out densely within an area.
	assert.Equal(t, h.AreaDataAddr(0), h.ItemPos(0, 0))
	assert.Equal(t, h.AreaDataAddr(0)+5*0x800, h.ItemPos(0, 5))
	assert.Equal(t, h.AreaDataAddr(0)+16*0x800, h.ItemPos(1, 0))

	// Item 32 is the first of the second area.
	assert.Equal(t, h.AreaDataAddr(1), h.ItemPos(2, 0))
}
