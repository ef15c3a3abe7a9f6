package vmfs

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the mount sequence and the read path. They are
// always wrapped with the failing stage via fmt.Errorf("...: %w", err), so
// callers should test them with errors.Is.
var (
	// ErrInvalidFSInfo means the fsinfo block is unusable (bad magic, or a
	// zero or non-power-of-two block size).
	ErrInvalidFSInfo = errors.New("invalid fsinfo")

	// ErrInvalidMagic means the fsinfo block does not start with the VMFS
	// magic number. No other fsinfo field is decoded after this. It matches
	// ErrInvalidFSInfo under errors.Is.
	ErrInvalidMagic = fmt.Errorf("%w: bad magic", ErrInvalidFSInfo)

	// ErrUUIDMismatch means the filesystem does not belong to the volume
	// group it was opened from.
	ErrUUIDMismatch = errors.New("filesystem does not belong to volume group")

	// ErrBootstrapFailed wraps any failure while locating the descriptor
	// metafile, the inode table or the root directory.
	ErrBootstrapFailed = errors.New("descriptor bootstrap failed")

	// ErrShortRead means the volume returned fewer bytes than required.
	ErrShortRead = errors.New("short read")

	// ErrInodeBind means a raw inode image was rejected while binding it to
	// a file handle.
	ErrInodeBind = errors.New("cannot bind inode")

	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("filesystem is closed")

	// ErrNotFound is returned when a path does not resolve to an entry.
	ErrNotFound = errors.New("no such file or directory")
)
