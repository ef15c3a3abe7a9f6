// Package vmfs implements read-only access to VMFS, the clustered on-disk
// filesystem used by ESX datastores.
//
// VMFS stores its own allocation state in four "metafiles" (regular files
// with reserved names) inside the filesystem itself. Mounting therefore
// requires a bootstrap step that fabricates a synthetic inode to reach the
// file-descriptor metafile before any path can be resolved; see fs.go.
//
// All on-disk structures are little-endian regardless of host byte order and
// are decoded with the explicit helpers in this file. Field offsets are kept
// together here, one table per structure, so the format contract stays
// auditable in a single place.
package vmfs

import "encoding/binary"

// Filesystem information block (superblock).
const (
	fsInfoBase = 0x0200000  // byte offset of the fsinfo block on the volume
	fsInfoSize = 512        // bytes read and parsed
	fsMagic    = 0x2fabf15e // little-endian u32 at offset 0

	fsInfoOfsMagic     = 0x0000 // u32
	fsInfoOfsVolVer    = 0x0004 // u32
	fsInfoOfsVer       = 0x0008 // u8
	fsInfoOfsUUID      = 0x0009 // 16 bytes
	fsInfoOfsMode      = 0x0019 // u32
	fsInfoOfsLabel     = 0x001d // fsInfoLabelSize bytes, NUL-terminated
	fsInfoOfsDevBlkSiz = 0x009d // u32
	fsInfoOfsBlkSize   = 0x00a1 // u64
	fsInfoOfsLVMUUID   = 0x00b1 // 16 bytes

	fsInfoLabelSize = 128
)

// Heartbeat region. Only its end matters here: the descriptor metafile
// starts at the first block boundary at or after it.
const (
	hbBase = 0x0300000
	hbSize = 0x200
	hbNum  = 2048
)

// Bitmap metafile header, at offset 0 of every metafile.
const (
	bmpHdrSize      = 0x1c
	bmpEntrySize    = 0x400 // on-disk size of one bitmap entry record
	bmpOfsItemsPerE = 0x00  // u32, items covered by one bitmap entry
	bmpOfsEntriesPA = 0x04  // u32, bitmap entries per allocation area
	bmpOfsHdrSize   = 0x08  // u32, header size up to the first area
	bmpOfsDataSize  = 0x0c  // u32, payload bytes of one item
	bmpOfsAreaSize  = 0x10  // u32, on-disk size of one area
	bmpOfsTotal     = 0x14  // u32, total item count
	bmpOfsAreaCount = 0x18  // u32, number of areas

	// Bitmap entry record layout. The first 0x200 bytes are the
	// metadata/lock header, ignored on the read-only path.
	bmpEntryOfsID     = 0x200 // u32
	bmpEntryOfsTotal  = 0x204 // u32
	bmpEntryOfsFree   = 0x208 // u32
	bmpEntryOfsFFree  = 0x20c // u32
	bmpEntryOfsBitmap = 0x210 // allocation bits, one per item
)

// Inode image. The first 0x200 bytes hold the metadata/lock header, which
// read-only access ignores.
const (
	inodeSize = 0x800

	inodeOfsID     = 0x200 // u32
	inodeOfsID2    = 0x204 // u32
	inodeOfsNlink  = 0x208 // u32
	inodeOfsType   = 0x20c // u32
	inodeOfsFlags  = 0x210 // u32
	inodeOfsSize   = 0x214 // u64
	inodeOfsBlkSiz = 0x21c // u64
	inodeOfsBlkCnt = 0x224 // u64
	inodeOfsMtime  = 0x22c // u32
	inodeOfsCtime  = 0x230 // u32
	inodeOfsAtime  = 0x234 // u32
	inodeOfsUID    = 0x238 // u32
	inodeOfsGID    = 0x23c // u32
	inodeOfsMode   = 0x240 // u32
	inodeOfsZLA    = 0x244 // u32
	inodeOfsTBZ    = 0x248 // u32
	inodeOfsCOW    = 0x24c // u32
	inodeOfsBlocks = 0x400 // inodeBlockCount little-endian u32 entries

	inodeBlockCount = 256
)

// File types stored in the inode type field.
const (
	FileTypeDir     = 0x02
	FileTypeFile    = 0x03
	FileTypeSymlink = 0x04
	FileTypeMeta    = 0x05
	FileTypeRDM     = 0x06
)

// Block identifiers pack a type tag into the low 6 bits and type-specific
// entry/item fields above it.
const (
	blkTypeNone = 0
	blkTypeFB   = 1 // file block: item = id >> 6
	blkTypeSB   = 2 // sub block: entry = (id >> 6) & 0x3fffff, item = id >> 28
	blkTypePB   = 3 // pointer block: same packing as SB
	blkTypeFD   = 4 // file descriptor: entry = (id >> 6) & 0xffff, item = (id >> 22) & 0x3f

	blkTypeMask = 0x3f
)

func blkType(id uint32) uint32    { return id & blkTypeMask }
func blkFBItem(id uint32) uint32  { return id >> 6 }
func blkSBEntry(id uint32) uint32 { return (id >> 6) & 0x3fffff }
func blkSBItem(id uint32) uint32  { return id >> 28 }
func blkFDEntry(id uint32) uint32 { return (id >> 6) & 0xffff }
func blkFDItem(id uint32) uint32  { return (id >> 22) & 0x3f }

// blkFB builds a file-block identifier for a given block index.
func blkFB(item uint32) uint32 { return blkTypeFB | item<<6 }

// blkFD builds a file-descriptor identifier for a given entry/item pair.
func blkFD(entry, item uint32) uint32 { return blkTypeFD | entry<<6 | item<<22 }

// Directory entry record.
const (
	direntSize     = 0x8c
	direntOfsType  = 0x00 // u32
	direntOfsBlkID = 0x04 // u32
	direntOfsRecID = 0x08 // u32
	direntOfsName  = 0x0c // direntNameSize bytes, NUL-terminated
	direntNameSize = 128
)

// Reserved metafile names, resolvable from the root directory.
const (
	FBBMetaFile = ".fbb.sf" // file block allocator
	FDCMetaFile = ".fdc.sf" // file descriptor allocator
	PBCMetaFile = ".pbc.sf" // pointer block allocator
	SBCMetaFile = ".sbc.sf" // sub block allocator
)

func readLE16(b []byte, ofs int) uint16 {
	return binary.LittleEndian.Uint16(b[ofs : ofs+2])
}

func readLE32(b []byte, ofs int) uint32 {
	return binary.LittleEndian.Uint32(b[ofs : ofs+4])
}

func readLE64(b []byte, ofs int) uint64 {
	return binary.LittleEndian.Uint64(b[ofs : ofs+8])
}

func writeLE32(b []byte, ofs int, v uint32) {
	binary.LittleEndian.PutUint32(b[ofs:ofs+4], v)
}

func writeLE64(b []byte, ofs int, v uint64) {
	binary.LittleEndian.PutUint64(b[ofs:ofs+8], v)
}

// cString truncates b at the first NUL.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
