// Package imagetest builds miniature but fully consistent VMFS volume
// images in memory, for tests that need to mount something real without a
// datastore at hand.
//
// The generated volume uses 1 MiB file blocks and places the descriptor
// metafile at 4 MiB, the first block boundary past the heartbeat region,
// exactly where the mount bootstrap computes it. The layout constants here
// deliberately restate the on-disk format so a regression in either the
// builder or the decoder shows up as a test failure instead of canceling
// out.
package imagetest

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmfstools/govmfs/pkg/vmfs"
)

// Volume geometry.
const (
	BlockSize = 1 << 20
	VolSize   = 14 << 20

	volInfoBase = 0x100000
	volMagic    = 0xc001d00d
	fsInfoBase  = 0x200000
	fsMagic     = 0x2fabf15e

	// FDCBase is where the descriptor metafile lives: the first block
	// boundary at or after the heartbeat region end (4 MiB).
	FDCBase = 0x400000
)

// File block assignments within the image.
const (
	fbFDC     = 4  // descriptor metafile
	fbRootDir = 5  // root directory data
	fbFBB     = 6  // file block metafile
	fbPBC     = 7  // pointer block metafile
	fbSBC     = 8  // sub block metafile
	fbSubDir  = 9  // "vm1" directory data
	fbFlat0   = 10 // flat.vmdk, first block
	fbFlat1   = 11 // flat.vmdk, second block
	fbLarge0  = 12 // large.bin via pointer block
	fbLarge1  = 13
)

// Inode layout, restated.
const (
	inodeSize      = 0x800
	inodeOfsType   = 0x20c
	inodeOfsSize   = 0x214
	inodeOfsMtime  = 0x22c
	inodeOfsZLA    = 0x244
	inodeOfsBlocks = 0x400

	typeDir  = 0x02
	typeFile = 0x03
	typeMeta = 0x05

	zlaFB = 1
	zlaSB = 2
	zlaPB = 3
	zlaFD = 4
)

// Bitmap and dirent layout, restated.
const (
	bmpEntrySize      = 0x400
	bmpEntryOfsTotal  = 0x204
	bmpEntryOfsFree   = 0x208
	direntSize        = 0x8c
	direntOfsType     = 0x00
	direntOfsBlkID    = 0x04
	direntOfsName     = 0x0c
)

// FDC metafile geometry.
const (
	fdcItemsPerEntry  = 16
	fdcEntriesPerArea = 2
	fdcHdrSize        = 0x1000
	fdcDataSize       = inodeSize
	fdcAreaSize       = fdcEntriesPerArea*bmpEntrySize + fdcItemsPerEntry*fdcEntriesPerArea*fdcDataSize
	fdcInodeTable     = fdcHdrSize + fdcEntriesPerArea*bmpEntrySize
)

// Allocator usage the builder records in the entry records; tests assert
// these numbers back out of Bitmap.AllocatedItems.
const (
	UsedInodes     = 11
	UsedFileBlocks = 3
	UsedSubBlocks  = 3
	UsedPtrBlocks  = 1
)

// Well-known file contents.
var (
	ConfigContent = []byte("guestOS = \"other-64\"\nmemSize = \"2048\"\n")
	NotesContent  = []byte("migrated from array snapshot 2024-11-02; verify before deletion")
	VMXContent    = []byte("displayName = \"vm1\"\nfirmware = \"efi\"\n")
)

// FlatContent returns the deterministic contents of flat.vmdk (1.5 MiB).
func FlatContent() []byte { return pattern(0x180000, 7, 3) }

// LargeContent returns the deterministic contents of large.bin (2 MiB),
// which the image maps through a pointer block.
func LargeContent() []byte { return pattern(0x200000, 11, 5) }

func pattern(n int, mul, add byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)*mul + add
	}
	return b
}

// Image is a built volume image plus the identities stamped into it.
type Image struct {
	Data      []byte
	FSUUID    vmfs.UUID
	GroupUUID vmfs.UUID
	Label     string
}

// Option tweaks the builder output.
type Option func(*builderOpts)

type builderOpts struct {
	omitName string
}

// WithoutEntry drops one name from the root directory, for tests that
// need a missing metafile.
func WithoutEntry(name string) Option {
	return func(o *builderOpts) { o.omitName = name }
}

// Build assembles the image.
func Build(opts ...Option) *Image {
	var o builderOpts
	for _, opt := range opts {
		opt(&o)
	}

	img := &Image{
		Data:  make([]byte, VolSize),
		Label: "datastore1",
	}
	copy(img.FSUUID[:], []byte{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	copy(img.GroupUUID[:], []byte{0x60, 0x60, 0x60, 0x61, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0, 0xaa, 0xbb})

	img.writeVolumeHeader()
	img.writeFSInfo()
	img.writeFDC(o.omitName)
	img.writeFBB()
	img.writePBC()
	img.writeSBC()
	img.writeRootDir(o.omitName)
	img.writeSubDir()
	img.writeFileData()

	return img
}

func le32(b []byte, ofs int, v uint32) { binary.LittleEndian.PutUint32(b[ofs:ofs+4], v) }
func le64(b []byte, ofs int, v uint64) { binary.LittleEndian.PutUint64(b[ofs:ofs+8], v) }

func blkFB(item uint32) uint32        { return 1 | item<<6 }
func blkSB(entry, item uint32) uint32 { return 2 | entry<<6 | item<<28 }
func blkPB(entry, item uint32) uint32 { return 3 | entry<<6 | item<<28 }
func blkFD(entry, item uint32) uint32 { return 4 | entry<<6 | item<<22 }

func (img *Image) writeVolumeHeader() {
	b := img.Data[volInfoBase:]
	le32(b, 0x0000, volMagic)
	le32(b, 0x0004, 5) // version
	copy(b[0x0012:], "naa.600508b1001c6a2f")
	copy(b[0x0082:], img.FSUUID[:]) // device uuid, reuse fs uuid bytes
	le64(b, 0x0200, VolSize)
	le32(b, 0x0214, 1) // one extent
	copy(b[0x0224:], img.GroupUUID[:])
}

func (img *Image) writeFSInfo() {
	b := img.Data[fsInfoBase:]
	le32(b, 0x0000, fsMagic)
	le32(b, 0x0004, 21) // volume format version
	b[0x0008] = 61      // filesystem version
	copy(b[0x0009:], img.FSUUID[:])
	copy(b[0x001d:], img.Label)
	le32(b, 0x009d, 512) // device block size
	le64(b, 0x00a1, BlockSize)
	copy(b[0x00b1:], img.GroupUUID[:])
}

// inodeSpec describes one inode table slot.
type inodeSpec struct {
	typ      uint32
	size     uint64
	zla      uint32
	mtime    uint32
	blocks   []uint32
	resident []byte
}

// Inode table slots. Order matters: slot 0 is the root directory, and the
// root dirents reference slots by index.
const (
	slotRoot = iota
	slotFBB
	slotFDC
	slotPBC
	slotSBC
	slotSubDir
	slotConfig
	slotFlat
	slotNotes
	slotLarge
	slotVMX
)

func rootDirents(omit string) []dirent {
	all := []dirent{
		{typeDir, blkFD(0, slotRoot), "."},
		{typeDir, blkFD(0, slotRoot), ".."},
		{typeMeta, blkFD(0, slotFBB), ".fbb.sf"},
		{typeMeta, blkFD(0, slotFDC), ".fdc.sf"},
		{typeMeta, blkFD(0, slotPBC), ".pbc.sf"},
		{typeMeta, blkFD(0, slotSBC), ".sbc.sf"},
		{typeDir, blkFD(0, slotSubDir), "vm1"},
		{typeFile, blkFD(0, slotConfig), "config.txt"},
		{typeFile, blkFD(0, slotFlat), "flat.vmdk"},
		{typeFile, blkFD(0, slotNotes), "notes.txt"},
		{typeFile, blkFD(0, slotLarge), "large.bin"},
	}
	if omit == "" {
		return all
	}
	kept := all[:0:0]
	for _, d := range all {
		if d.name != omit {
			kept = append(kept, d)
		}
	}
	return kept
}

type dirent struct {
	typ   uint32
	blkID uint32
	name  string
}

func (img *Image) inodes(omit string) map[int]inodeSpec {
	rootSize := uint64(len(rootDirents(omit)) * direntSize)
	return map[int]inodeSpec{
		slotRoot:   {typ: typeDir, size: rootSize, zla: zlaFB, mtime: 1730556000, blocks: []uint32{blkFB(fbRootDir)}},
		slotFBB:    {typ: typeMeta, size: BlockSize, zla: zlaFB, blocks: []uint32{blkFB(fbFBB)}},
		slotFDC:    {typ: typeMeta, size: BlockSize, zla: zlaFB, blocks: []uint32{blkFB(fbFDC)}},
		slotPBC:    {typ: typeMeta, size: BlockSize, zla: zlaFB, blocks: []uint32{blkFB(fbPBC)}},
		slotSBC:    {typ: typeMeta, size: BlockSize, zla: zlaFB, blocks: []uint32{blkFB(fbSBC)}},
		slotSubDir: {typ: typeDir, size: 3 * direntSize, zla: zlaFB, mtime: 1730556000, blocks: []uint32{blkFB(fbSubDir)}},
		slotConfig: {typ: typeFile, size: uint64(len(ConfigContent)), zla: zlaFD, mtime: 1730556100, resident: ConfigContent},
		slotFlat:   {typ: typeFile, size: uint64(len(FlatContent())), zla: zlaFB, mtime: 1730556200, blocks: []uint32{blkFB(fbFlat0), blkFB(fbFlat1)}},
		slotNotes:  {typ: typeFile, size: uint64(len(NotesContent)), zla: zlaSB, mtime: 1730556300, blocks: []uint32{blkSB(0, 2)}},
		slotLarge:  {typ: typeFile, size: uint64(len(LargeContent())), zla: zlaPB, mtime: 1730556400, blocks: []uint32{blkPB(0, 0)}},
		slotVMX:    {typ: typeFile, size: uint64(len(VMXContent)), zla: zlaFD, mtime: 1730556500, resident: VMXContent},
	}
}

func (img *Image) writeInode(slot int, spec inodeSpec) {
	base := FDCBase + fdcInodeTable + slot*inodeSize
	b := img.Data[base : base+inodeSize]
	le32(b, inodeOfsType, spec.typ)
	le64(b, inodeOfsSize, spec.size)
	le32(b, inodeOfsZLA, spec.zla)
	le32(b, inodeOfsMtime, spec.mtime)
	for i, blk := range spec.blocks {
		le32(b, inodeOfsBlocks+i*4, blk)
	}
	copy(b[inodeOfsBlocks:], spec.resident)
}

func (img *Image) writeFDC(omit string) {
	b := img.Data[FDCBase:]
	le32(b, 0x00, fdcItemsPerEntry)
	le32(b, 0x04, fdcEntriesPerArea)
	le32(b, 0x08, fdcHdrSize)
	le32(b, 0x0c, fdcDataSize)
	le32(b, 0x10, fdcAreaSize)
	le32(b, 0x14, fdcItemsPerEntry*fdcEntriesPerArea)
	le32(b, 0x18, 1)

	// Entry records precede the inode table.
	le32(b, fdcHdrSize+bmpEntryOfsTotal, fdcItemsPerEntry)
	le32(b, fdcHdrSize+bmpEntryOfsFree, fdcItemsPerEntry-UsedInodes)
	le32(b, fdcHdrSize+bmpEntrySize+bmpEntryOfsTotal, fdcItemsPerEntry)
	le32(b, fdcHdrSize+bmpEntrySize+bmpEntryOfsFree, fdcItemsPerEntry)

	for slot, spec := range img.inodes(omit) {
		img.writeInode(slot, spec)
	}
}

func (img *Image) writeFBB() {
	b := img.Data[fbFBB*BlockSize:]
	le32(b, 0x00, 8)      // items per entry
	le32(b, 0x04, 1)      // entries per area
	le32(b, 0x08, 0x400)  // header size
	le32(b, 0x0c, BlockSize)
	le32(b, 0x10, 0x400+8*BlockSize)
	le32(b, 0x14, 8)
	le32(b, 0x18, 1)
	le32(b, 0x400+bmpEntryOfsTotal, 8)
	le32(b, 0x400+bmpEntryOfsFree, 8-UsedFileBlocks)
}

func (img *Image) writePBC() {
	b := img.Data[fbPBC*BlockSize:]
	le32(b, 0x00, 4)
	le32(b, 0x04, 1)
	le32(b, 0x08, 0x400)
	le32(b, 0x0c, 0x1000)
	le32(b, 0x10, 0x400+4*0x1000)
	le32(b, 0x14, 4)
	le32(b, 0x18, 1)
	le32(b, 0x400+bmpEntryOfsTotal, 4)
	le32(b, 0x400+bmpEntryOfsFree, 4-UsedPtrBlocks)

	// Pointer block item 0: the block list of large.bin.
	item := 0x400 + bmpEntrySize
	le32(b, item, blkFB(fbLarge0))
	le32(b, item+4, blkFB(fbLarge1))
}

func (img *Image) writeSBC() {
	b := img.Data[fbSBC*BlockSize:]
	le32(b, 0x00, 16)
	le32(b, 0x04, 1)
	le32(b, 0x08, 0x400)
	le32(b, 0x0c, 0x1000)
	le32(b, 0x10, 0x400+16*0x1000)
	le32(b, 0x14, 16)
	le32(b, 0x18, 1)
	le32(b, 0x400+bmpEntryOfsTotal, 16)
	le32(b, 0x400+bmpEntryOfsFree, 16-UsedSubBlocks)

	// Sub block item 2: notes.txt content.
	copy(b[0x400+bmpEntrySize+2*0x1000:], NotesContent)
}

func (img *Image) writeRootDir(omit string) {
	base := fbRootDir * BlockSize
	for i, d := range rootDirents(omit) {
		img.writeDirent(base+i*direntSize, d)
	}
}

func (img *Image) writeSubDir() {
	base := fbSubDir * BlockSize
	dirents := []dirent{
		{typeDir, blkFD(0, slotSubDir), "."},
		{typeDir, blkFD(0, slotRoot), ".."},
		{typeFile, blkFD(0, slotVMX), "vm1.vmx"},
	}
	for i, d := range dirents {
		img.writeDirent(base+i*direntSize, d)
	}
}

func (img *Image) writeDirent(ofs int, d dirent) {
	b := img.Data[ofs : ofs+direntSize]
	le32(b, direntOfsType, d.typ)
	le32(b, direntOfsBlkID, d.blkID)
	copy(b[direntOfsName:], d.name)
}

func (img *Image) writeFileData() {
	copy(img.Data[fbFlat0*BlockSize:], FlatContent()[:BlockSize])
	copy(img.Data[fbFlat1*BlockSize:], FlatContent()[BlockSize:])
	copy(img.Data[fbLarge0*BlockSize:], LargeContent()[:BlockSize])
	copy(img.Data[fbLarge1*BlockSize:], LargeContent()[BlockSize:])
}

// MemVolume is an in-memory vmfs.VolumeAccessor over a built image, with
// the failure injection hooks the mount tests need.
type MemVolume struct {
	Data  []byte
	Group vmfs.UUID
	Debug int

	// Limit, when positive, truncates the visible volume.
	Limit int64

	// MaxRead is the highest byte offset any read touched.
	MaxRead int64

	// OpenErr, when set, fails Open.
	OpenErr error

	Opens  int
	Closes int
}

// NewMemVolume wraps an image in an accessor whose group UUID matches the
// one stamped into the image.
func NewMemVolume(img *Image) *MemVolume {
	return &MemVolume{Data: img.Data, Group: img.GroupUUID}
}

func (v *MemVolume) Open() error {
	if v.OpenErr != nil {
		return v.OpenErr
	}
	v.Opens++
	return nil
}

func (v *MemVolume) Close() error {
	v.Closes++
	return nil
}

func (v *MemVolume) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	size := int64(len(v.Data))
	if v.Limit > 0 && v.Limit < size {
		size = v.Limit
	}
	if end := off + int64(len(p)); end > v.MaxRead {
		v.MaxRead = end
	}
	if off >= size {
		return 0, io.EOF
	}
	n := copy(p, v.Data[off:size])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (v *MemVolume) GroupUUID() vmfs.UUID { return v.Group }
func (v *MemVolume) DebugLevel() int      { return v.Debug }
