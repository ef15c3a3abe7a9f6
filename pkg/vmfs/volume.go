package vmfs

import "io"

// VolumeAccessor is the byte-level view of a logical VMFS volume: one or
// more physical extents already assembled into a single addressable stream.
// Implementations live in pkg/volume; this package only consumes the
// interface.
//
// ReadAt follows io.ReaderAt semantics. Short reads are surfaced to callers
// as-is; any retry or timeout policy belongs to the accessor, never to this
// layer.
type VolumeAccessor interface {
	io.ReaderAt

	// Open prepares the underlying extents for reading.
	Open() error

	// Close releases the underlying extents. It must be idempotent.
	Close() error

	// GroupUUID returns the identifier of the volume group (LVM) backing
	// this volume. The filesystem's recorded group UUID must match it.
	GroupUUID() UUID

	// DebugLevel reports the accessor's debug verbosity. The filesystem
	// copies it at creation time and dumps extra state during the mount
	// sequence when it is positive.
	DebugLevel() int
}
