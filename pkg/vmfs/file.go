package vmfs

import (
	"fmt"
	"io"
)

// File is a read-only handle over a bound inode. It keeps one stream
// cursor for Read/Seek; ReadAt is stateless. A File does not outlive the
// filesystem handle it was bound from.
type File struct {
	fs  *FileSystem
	ino *Inode
	pos int64
}

// bindInode turns a raw inode image into a File. The image only needs to
// decode cleanly; it may have been fabricated in memory.
func (fs *FileSystem) bindInode(img []byte) (*File, error) {
	ino, err := decodeInode(img)
	if err != nil {
		return nil, err
	}
	return &File{fs: fs, ino: ino}, nil
}

// Inode exposes the decoded inode backing this file.
func (f *File) Inode() *Inode { return f.ino }

// Size returns the file size recorded in the inode.
func (f *File) Size() int64 { return int64(f.ino.Size) }

// Seek repositions the stream cursor following io.Seeker semantics.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.ino == nil {
		return 0, ErrClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = f.Size() + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative seek position %d", abs)
	}
	f.pos = abs
	return abs, nil
}

// Read reads from the stream cursor and advances it.
func (f *File) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

// ReadAt reads file content at an absolute position. Unallocated blocks
// read as zeroes. A read past EOF is truncated and reports io.EOF.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f == nil || f.ino == nil {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	size := f.Size()
	if off >= size {
		return 0, io.EOF
	}
	truncated := false
	if off+int64(len(p)) > size {
		p = p[:size-off]
		truncated = true
	}

	total := 0
	pos := uint64(off)
	for total < len(p) {
		blkID, unit, err := f.ino.blockAt(f.fs, pos)
		if err != nil {
			return total, err
		}

		inBlk := pos % unit
		chunk := len(p) - total
		if rest := unit - inBlk; uint64(chunk) > rest {
			chunk = int(rest)
		}
		dst := p[total : total+chunk]

		if err := f.readBlockData(blkID, inBlk, dst); err != nil {
			return total, err
		}

		total += chunk
		pos += uint64(chunk)
	}

	if truncated {
		return total, io.EOF
	}
	return total, nil
}

// readBlockData fills dst from one resolved block, starting inBlk bytes
// into it.
func (f *File) readBlockData(blkID uint32, inBlk uint64, dst []byte) error {
	switch blkType(blkID) {
	case blkTypeNone:
		for i := range dst {
			dst[i] = 0
		}
		return nil

	case blkTypeFB:
		n, err := f.fs.ReadBlock(blkFBItem(blkID), inBlk, dst)
		if err != nil && err != io.EOF {
			return err
		}
		if n != len(dst) {
			return fmt.Errorf("%w: %d of %d bytes", ErrShortRead, n, len(dst))
		}
		return nil

	case blkTypeSB:
		sbc := f.fs.sbc
		if sbc == nil {
			return fmt.Errorf("sub-block 0x%08x referenced before sub-block allocator is open", blkID)
		}
		pos := sbc.Header.ItemPos(blkSBEntry(blkID), blkSBItem(blkID)) + int64(inBlk)
		n, err := sbc.f.ReadAt(dst, pos)
		if err != nil && err != io.EOF {
			return err
		}
		if n != len(dst) {
			return fmt.Errorf("%w: %d of %d bytes", ErrShortRead, n, len(dst))
		}
		return nil

	case blkTypeFD:
		// Descriptor-resident data.
		if int(inBlk)+len(dst) > len(f.ino.resident) {
			return fmt.Errorf("resident data read beyond descriptor (%d+%d of %d)",
				inBlk, len(dst), len(f.ino.resident))
		}
		copy(dst, f.ino.resident[inBlk:])
		return nil

	default:
		return fmt.Errorf("unknown block type in id 0x%08x", blkID)
	}
}

// Close detaches the file from its inode. Idempotent and safe on nil.
func (f *File) Close() error {
	if f == nil {
		return nil
	}
	f.ino = nil
	return nil
}
