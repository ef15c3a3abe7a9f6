// Package volume implements the byte-level volume accessors a VMFS
// filesystem is mounted from: local files or devices holding one or more
// extents, and flat disk images stored in S3.
//
// Every accessor parses the volume header once during Open to learn the
// identifier of the volume group it belongs to. The filesystem layer
// cross-checks that identifier against the one recorded in the fsinfo
// block.
package volume

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmfstools/govmfs/pkg/vmfs"
)

// Volume header and embedded group (LVM) descriptor. Little-endian, at a
// fixed offset from the start of the first extent.
const (
	volInfoBase = 0x100000
	volInfoSize = 0x300
	volMagic    = 0xc001d00d

	volOfsMagic = 0x0000 // u32
	volOfsVer   = 0x0004 // u32
	volOfsName  = 0x0012 // volNameSize bytes, NUL-terminated
	volOfsUUID  = 0x0082 // 16 bytes, this extent's device

	lvmOfsSize       = 0x0200 // u64, usable bytes of the group
	lvmOfsBlocks     = 0x0208 // u64
	lvmOfsNumExtents = 0x0214 // u32
	lvmOfsUUID       = 0x0224 // 16 bytes, the volume group

	volNameSize = 28
)

// Info is the decoded volume header of one extent.
type Info struct {
	Version    uint32
	Name       string
	DeviceUUID vmfs.UUID
	GroupUUID  vmfs.UUID
	GroupSize  uint64
	NumExtents uint32
}

// readInfo decodes the volume header from an open extent.
func readInfo(r io.ReaderAt) (*Info, error) {
	buf := make([]byte, volInfoSize)
	if _, err := r.ReadAt(buf, volInfoBase); err != nil {
		return nil, fmt.Errorf("reading volume header: %w", err)
	}

	magic := binary.LittleEndian.Uint32(buf[volOfsMagic:])
	if magic != volMagic {
		return nil, fmt.Errorf("invalid volume magic 0x%08x", magic)
	}

	info := &Info{
		Version:    binary.LittleEndian.Uint32(buf[volOfsVer:]),
		GroupSize:  binary.LittleEndian.Uint64(buf[lvmOfsSize:]),
		NumExtents: binary.LittleEndian.Uint32(buf[lvmOfsNumExtents:]),
	}
	copy(info.DeviceUUID[:], buf[volOfsUUID:volOfsUUID+16])
	copy(info.GroupUUID[:], buf[lvmOfsUUID:lvmOfsUUID+16])

	name := buf[volOfsName : volOfsName+volNameSize]
	for i, c := range name {
		if c == 0 {
			name = name[:i]
			break
		}
	}
	info.Name = string(name)

	return info, nil
}
