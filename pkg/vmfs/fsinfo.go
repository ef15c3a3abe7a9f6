package vmfs

import (
	"fmt"
	"io"
	"math/bits"
)

// FSInfo is the decoded filesystem information block. It is immutable once
// read; the filesystem handle keeps one copy for the lifetime of the mount.
type FSInfo struct {
	Magic      uint32
	VolVersion uint32
	Version    uint8
	Mode       uint32
	UUID       UUID
	Label      string
	DevBlkSize uint32
	BlockSize  uint64
	LVMUUID    UUID
}

// readFSInfo reads and decodes the 512-byte fsinfo block at its fixed
// offset. It is a pure parse: identical volume bytes always yield an
// identical FSInfo. A bad magic aborts the decode immediately and no other
// field is trusted.
func readFSInfo(vol VolumeAccessor) (*FSInfo, error) {
	buf := make([]byte, fsInfoSize)
	n, err := vol.ReadAt(buf, fsInfoBase)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading fsinfo block: %w", err)
	}
	if n != fsInfoSize {
		return nil, fmt.Errorf("reading fsinfo block: %w: %d of %d bytes", ErrShortRead, n, fsInfoSize)
	}

	magic := readLE32(buf, fsInfoOfsMagic)
	if magic != fsMagic {
		return nil, fmt.Errorf("%w: 0x%08x", ErrInvalidMagic, magic)
	}

	info := &FSInfo{
		Magic:      magic,
		VolVersion: readLE32(buf, fsInfoOfsVolVer),
		Version:    buf[fsInfoOfsVer],
		Mode:       readLE32(buf, fsInfoOfsMode),
		UUID:       uuidFrom(buf[fsInfoOfsUUID : fsInfoOfsUUID+16]),
		Label:      cString(buf[fsInfoOfsLabel : fsInfoOfsLabel+fsInfoLabelSize]),
		DevBlkSize: readLE32(buf, fsInfoOfsDevBlkSiz),
		BlockSize:  readLE64(buf, fsInfoOfsBlkSize),
		LVMUUID:    uuidFrom(buf[fsInfoOfsLVMUUID : fsInfoOfsLVMUUID+16]),
	}

	// A zero or irregular block size would make the descriptor bootstrap
	// arithmetic undefined, so it is rejected here, before any bootstrap.
	if info.BlockSize == 0 || bits.OnesCount64(info.BlockSize) != 1 {
		return nil, fmt.Errorf("%w: unusable block size %d", ErrInvalidFSInfo, info.BlockSize)
	}

	return info, nil
}
