package vmfs

import (
	"fmt"
	"io"

	"github.com/vmfstools/govmfs/internal/logger"
)

type fsState int

const (
	stateCreated fsState = iota
	stateOpening
	stateOpen
	stateFailed
	stateClosed
)

// FileSystem is one mounted (read-only) VMFS instance. It aggregates the
// volume accessor, the decoded filesystem information, the four resource
// allocators and the root directory handle.
//
// A FileSystem is either fully open or in a defined failure state: every
// mount failure leaves the handle safely closable, with Close releasing
// exactly the resources that were acquired. Mounting is strictly
// sequential; the handle must not be shared until Open has returned.
type FileSystem struct {
	vol   VolumeAccessor
	debug int
	state fsState

	info *FSInfo

	fbb *Bitmap // file block allocator
	fdc *Bitmap // file descriptor allocator
	pbc *Bitmap // pointer block allocator
	sbc *Bitmap // sub block allocator

	root      *File
	rootInode []byte
}

// Create allocates a filesystem handle over a volume accessor. It performs
// no I/O and never fails; the accessor is adopted and closed by Close.
func Create(vol VolumeAccessor) *FileSystem {
	return &FileSystem{
		vol:   vol,
		debug: vol.DebugLevel(),
		state: stateCreated,
	}
}

// Info returns the decoded filesystem information block. It is nil before a
// successful Open.
func (fs *FileSystem) Info() *FSInfo { return fs.info }

// BlockSize returns the filesystem block size in bytes.
func (fs *FileSystem) BlockSize() uint64 {
	if fs.info == nil {
		return 0
	}
	return fs.info.BlockSize
}

func (fs *FileSystem) subBlockSize() uint64 {
	if fs.sbc == nil {
		return 0
	}
	return uint64(fs.sbc.Header.DataSize)
}

// Root returns the root directory handle, nil before a successful Open.
func (fs *FileSystem) Root() *File { return fs.root }

// FBB returns the file block allocator.
func (fs *FileSystem) FBB() *Bitmap { return fs.fbb }

// FDC returns the file descriptor allocator.
func (fs *FileSystem) FDC() *Bitmap { return fs.fdc }

// PBC returns the pointer block allocator.
func (fs *FileSystem) PBC() *Bitmap { return fs.pbc }

// SBC returns the sub block allocator.
func (fs *FileSystem) SBC() *Bitmap { return fs.sbc }

// ReadBlock reads from a logical file block: the volume position is
// blk*blockSize+offset, widened to 64 bits before the multiplication. The
// byte count is whatever the accessor returns; short reads are not retried
// here.
func (fs *FileSystem) ReadBlock(blk uint32, offset uint64, p []byte) (int, error) {
	if fs.state != stateOpen && fs.state != stateOpening {
		return 0, ErrClosed
	}
	pos := uint64(blk)*fs.BlockSize() + offset
	return fs.vol.ReadAt(p, int64(pos))
}

// OpenFile resolves a slash-separated path and binds the resulting inode to
// a file handle.
func (fs *FileSystem) OpenFile(path string) (*File, error) {
	img, err := fs.resolvePath(path)
	if err != nil {
		return nil, err
	}
	return fs.bindInode(img)
}

// ReadDir lists a directory given by path.
func (fs *FileSystem) ReadDir(path string) ([]DirEntry, error) {
	dir, err := fs.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer dir.Close()
	if dir.ino.Type != FileTypeDir {
		return nil, fmt.Errorf("%q is not a directory", path)
	}
	return readDir(dir)
}

// Open mounts the filesystem: it opens the volume, validates the fsinfo
// block, checks that the filesystem belongs to the attached volume group
// and runs the descriptor bootstrap. On any failure the handle ends up in a
// failed state from which Close releases whatever was acquired.
func (fs *FileSystem) Open() error {
	switch fs.state {
	case stateCreated:
		// proceed
	case stateOpen, stateOpening:
		return fmt.Errorf("filesystem is already open")
	default:
		return ErrClosed
	}
	fs.state = stateOpening

	if err := fs.vol.Open(); err != nil {
		fs.state = stateFailed
		return fmt.Errorf("opening volume: %w", err)
	}

	info, err := readFSInfo(fs.vol)
	if err != nil {
		fs.state = stateFailed
		return fmt.Errorf("reading filesystem information: %w", err)
	}
	fs.info = info

	if info.LVMUUID != fs.vol.GroupUUID() {
		fs.state = stateFailed
		return fmt.Errorf("%w: filesystem records %s, volume group is %s",
			ErrUUIDMismatch, info.LVMUUID, fs.vol.GroupUUID())
	}

	if fs.debug > 0 {
		fs.show()
	}

	if err := fs.readDescriptorBase(); err != nil {
		fs.state = stateFailed
		return fmt.Errorf("%w: %w", ErrBootstrapFailed, err)
	}

	fs.state = stateOpen
	if fs.debug > 0 {
		logger.Debug("vmfs: filesystem %q opened", info.Label)
	}
	return nil
}

// heartbeatEnd returns the first byte past the on-disk heartbeat records.
func heartbeatEnd() uint64 {
	return hbBase + hbNum*hbSize
}

// descriptorBase places the descriptor metafile at the first block-aligned
// boundary at or after the heartbeat region.
func descriptorBase(hbEnd, blockSize uint64) uint64 {
	if blockSize > hbEnd {
		return blockSize
	}
	return hbEnd
}

// syntheticDescriptorInode fabricates the little-endian inode image used to
// reach the descriptor metafile before any path exists. Only three fields
// matter to the binder: the size (one filesystem block), the reserved
// metadata file type, and a first block descriptor pointing at the file
// block holding the metafile.
func syntheticDescriptorInode(blockSize, fdcBase uint64) []byte {
	img := make([]byte, inodeSize)
	writeLE64(img, inodeOfsSize, blockSize)
	writeLE32(img, inodeOfsType, FileTypeMeta)
	writeLE32(img, inodeOfsBlocks, blkFB(uint32(fdcBase/blockSize)))
	return img
}

// readDescriptorBase runs the one-time bootstrap that breaks the circular
// dependency between the allocator metafiles and the directory tree:
// fabricate an inode for the descriptor metafile, read the inode table from
// its first allocation area, bind the root directory from the table's first
// slot, then reopen every allocator through a real path.
func (fs *FileSystem) readDescriptorBase() error {
	bs := fs.BlockSize()
	fdcBase := descriptorBase(heartbeatEnd(), bs)
	if fs.debug > 0 {
		logger.Debug("vmfs: descriptor base @0x%x", fdcBase)
	}

	boot, err := fs.openBitmap(FromInode(syntheticDescriptorInode(bs, fdcBase)))
	if err != nil {
		return fmt.Errorf("opening descriptor allocator: %w", err)
	}
	fs.fdc = boot

	// The first allocation area's payload holds the inode table.
	inodePos := boot.Header.AreaDataAddr(0)
	if fs.debug > 0 {
		logger.Debug("vmfs: inode table @0x%x", inodePos)
	}

	if _, err := boot.f.Seek(inodePos, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to inode table: %w", err)
	}
	buf := make([]byte, boot.Header.DataSize)
	n, err := boot.f.Read(buf)
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading inode table: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("reading inode table: %w: %d of %d bytes", ErrShortRead, n, len(buf))
	}

	// The table's first slot is the root directory.
	fs.rootInode = append([]byte(nil), buf[:inodeSize]...)
	root, err := fs.bindInode(fs.rootInode)
	if err != nil {
		return fmt.Errorf("binding root directory: %w", err)
	}
	fs.root = root

	return fs.openMetaFiles(boot)
}

// openMetaFiles opens all four allocators by their reserved names, then
// discards the bootstrap descriptor instance so every live allocator has
// path provenance. Each open is checked: continuing with a missing
// allocator would only fail later and further from the cause.
func (fs *FileSystem) openMetaFiles(boot *Bitmap) error {
	var err error
	if fs.fbb, err = fs.openBitmap(FromPath(FBBMetaFile)); err != nil {
		return fmt.Errorf("opening %s: %w", FBBMetaFile, err)
	}

	// The bootstrap instance stays live in fs.fdc until its path-resolved
	// replacement exists: resolving the replacement's own name needs it.
	fdc, err := fs.openBitmap(FromPath(FDCMetaFile))
	if err != nil {
		return fmt.Errorf("opening %s: %w", FDCMetaFile, err)
	}
	fs.fdc = fdc
	boot.Close()

	if fs.pbc, err = fs.openBitmap(FromPath(PBCMetaFile)); err != nil {
		return fmt.Errorf("opening %s: %w", PBCMetaFile, err)
	}
	if fs.sbc, err = fs.openBitmap(FromPath(SBCMetaFile)); err != nil {
		return fmt.Errorf("opening %s: %w", SBCMetaFile, err)
	}
	return nil
}

// show dumps the filesystem information block at debug level.
func (fs *FileSystem) show() {
	logger.Debug("vmfs: volume version %d, version %d", fs.info.VolVersion, fs.info.Version)
	logger.Debug("vmfs: label %q", fs.info.Label)
	logger.Debug("vmfs: uuid %s", fs.info.UUID)
	logger.Debug("vmfs: block size %d (0x%x)", fs.info.BlockSize, fs.info.BlockSize)
}

// Close releases every acquired resource: the four allocators, the root
// directory and the volume accessor. It tolerates any partial state, is
// idempotent, and is a no-op on a nil handle.
func (fs *FileSystem) Close() error {
	if fs == nil || fs.state == stateClosed {
		return nil
	}
	fs.state = stateClosed

	fs.fbb.Close()
	fs.fdc.Close()
	fs.pbc.Close()
	fs.sbc.Close()
	fs.fbb, fs.fdc, fs.pbc, fs.sbc = nil, nil, nil, nil

	fs.root.Close()
	fs.root = nil
	fs.rootInode = nil
	fs.info = nil

	return fs.vol.Close()
}
