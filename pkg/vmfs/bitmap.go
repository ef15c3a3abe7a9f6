package vmfs

import (
	"fmt"
	"io"
)

// BitmapHeader describes one allocator: how many items one bitmap entry
// covers, how entries are grouped into allocation areas, and how large one
// item's payload is.
type BitmapHeader struct {
	ItemsPerEntry  uint32
	EntriesPerArea uint32
	HdrSize        uint32
	DataSize       uint32
	AreaSize       uint32
	TotalItems     uint32
	AreaCount      uint32
}

// Bitmap is one resource allocator (file blocks, descriptors, pointer
// blocks or sub blocks), backed by its metafile. It owns the underlying
// file handle, including its single stream cursor: concurrent use must be
// serialized by the caller.
type Bitmap struct {
	Header BitmapHeader
	f      *File
}

// BitmapOrigin names where a bitmap metafile's bytes come from: a reserved
// path once the root directory is readable, or a raw inode image during the
// descriptor bootstrap. Both origins flow through the same openBitmap entry
// point so the header decoding is identical either way.
type BitmapOrigin struct {
	path string
	raw  []byte
}

// FromPath opens a bitmap by resolving a reserved metafile name.
func FromPath(name string) BitmapOrigin { return BitmapOrigin{path: name} }

// FromInode opens a bitmap directly from a raw inode image, bypassing path
// resolution. Used exactly once per mount, for the descriptor allocator.
func FromInode(raw []byte) BitmapOrigin { return BitmapOrigin{raw: raw} }

// openBitmap binds a file handle for the given origin and decodes the
// bitmap header from the start of the file.
func (fs *FileSystem) openBitmap(origin BitmapOrigin) (*Bitmap, error) {
	var (
		f   *File
		err error
	)
	if origin.raw != nil {
		f, err = fs.bindInode(origin.raw)
	} else {
		f, err = fs.OpenFile(origin.path)
	}
	if err != nil {
		return nil, err
	}

	b := &Bitmap{f: f}
	hdr := make([]byte, bmpHdrSize)
	n, err := f.ReadAt(hdr, 0)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, fmt.Errorf("reading bitmap header: %w", err)
	}
	if n != bmpHdrSize {
		f.Close()
		return nil, fmt.Errorf("reading bitmap header: %w", ErrShortRead)
	}

	b.Header = BitmapHeader{
		ItemsPerEntry:  readLE32(hdr, bmpOfsItemsPerE),
		EntriesPerArea: readLE32(hdr, bmpOfsEntriesPA),
		HdrSize:        readLE32(hdr, bmpOfsHdrSize),
		DataSize:       readLE32(hdr, bmpOfsDataSize),
		AreaSize:       readLE32(hdr, bmpOfsAreaSize),
		TotalItems:     readLE32(hdr, bmpOfsTotal),
		AreaCount:      readLE32(hdr, bmpOfsAreaCount),
	}

	if b.Header.ItemsPerEntry == 0 || b.Header.EntriesPerArea == 0 {
		f.Close()
		return nil, fmt.Errorf("bitmap header has empty geometry (items/entry=%d, entries/area=%d)",
			b.Header.ItemsPerEntry, b.Header.EntriesPerArea)
	}

	return b, nil
}

// AreaAddr returns the offset of an allocation area within the metafile.
func (h *BitmapHeader) AreaAddr(area uint32) int64 {
	return int64(h.HdrSize) + int64(area)*int64(h.AreaSize)
}

// AreaDataAddr returns the offset, within the metafile, where an area's
// item payload begins: past the area's bitmap entry records.
func (h *BitmapHeader) AreaDataAddr(area uint32) int64 {
	return h.AreaAddr(area) + int64(h.EntriesPerArea)*bmpEntrySize
}

// ItemPos returns the metafile offset of one item's payload.
func (h *BitmapHeader) ItemPos(entry, item uint32) int64 {
	idx := int64(entry)*int64(h.ItemsPerEntry) + int64(item)
	perArea := int64(h.ItemsPerEntry) * int64(h.EntriesPerArea)
	area := idx / perArea
	return h.AreaDataAddr(uint32(area)) + (idx%perArea)*int64(h.DataSize)
}

// GetItem reads one item's payload into buf, which must be exactly
// Header.DataSize bytes.
func (b *Bitmap) GetItem(entry, item uint32, buf []byte) error {
	if b == nil || b.f == nil {
		return ErrClosed
	}
	if len(buf) != int(b.Header.DataSize) {
		return fmt.Errorf("item buffer is %d bytes, want %d", len(buf), b.Header.DataSize)
	}
	n, err := b.f.ReadAt(buf, b.Header.ItemPos(entry, item))
	if err != nil && err != io.EOF {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortRead, n, len(buf))
	}
	return nil
}

// AllocatedItems walks every bitmap entry record and sums the allocated
// item count (total minus free). Used for usage reporting only.
func (b *Bitmap) AllocatedItems() (uint32, error) {
	if b == nil || b.f == nil {
		return 0, ErrClosed
	}
	var used uint32
	entries := (b.Header.TotalItems + b.Header.ItemsPerEntry - 1) / b.Header.ItemsPerEntry
	rec := make([]byte, bmpEntrySize)
	for e := uint32(0); e < entries; e++ {
		area := e / b.Header.EntriesPerArea
		pos := b.Header.AreaAddr(area) + int64(e%b.Header.EntriesPerArea)*bmpEntrySize
		n, err := b.f.ReadAt(rec, pos)
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("reading bitmap entry %d: %w", e, err)
		}
		if n != len(rec) {
			return 0, fmt.Errorf("reading bitmap entry %d: %w", e, ErrShortRead)
		}
		total := readLE32(rec, bmpEntryOfsTotal)
		free := readLE32(rec, bmpEntryOfsFree)
		if free > total {
			return 0, fmt.Errorf("bitmap entry %d: free %d exceeds total %d", e, free, total)
		}
		used += total - free
	}
	return used, nil
}

// Close releases the underlying file handle. It is safe on a nil, partially
// constructed or already closed bitmap.
func (b *Bitmap) Close() {
	if b == nil || b.f == nil {
		return
	}
	b.f.Close()
	b.f = nil
}
