package volume

import (
	"fmt"
	"io"
	"os"

	"github.com/vmfstools/govmfs/internal/logger"
	"github.com/vmfstools/govmfs/pkg/vmfs"
)

// FileVolume reads a VMFS volume from one or more local files or block
// devices, concatenated in the order given. Extent reordering and gap
// handling belong to a real LVM layer and are not attempted here.
type FileVolume struct {
	paths []string
	debug int

	files []*os.File
	sizes []int64
	info  *Info
}

// NewFile creates a file-backed volume accessor over the given extents.
// Nothing is opened until Open.
func NewFile(paths []string, debug int) *FileVolume {
	return &FileVolume{paths: paths, debug: debug}
}

// Open opens every extent and decodes the volume header from the first one.
func (v *FileVolume) Open() error {
	if len(v.paths) == 0 {
		return fmt.Errorf("no volume extents given")
	}
	if v.files != nil {
		return nil
	}

	for _, p := range v.paths {
		f, err := os.Open(p)
		if err != nil {
			v.closeFiles()
			return fmt.Errorf("opening extent: %w", err)
		}
		st, err := f.Stat()
		if err != nil {
			f.Close()
			v.closeFiles()
			return fmt.Errorf("sizing extent %s: %w", p, err)
		}
		v.files = append(v.files, f)
		v.sizes = append(v.sizes, st.Size())
	}

	info, err := readInfo(v.files[0])
	if err != nil {
		v.closeFiles()
		return fmt.Errorf("%s: %w", v.paths[0], err)
	}
	v.info = info

	if v.debug > 0 {
		logger.Debug("volume: %q, group %s, %d extent(s)", info.Name, info.GroupUUID, len(v.files))
	}
	return nil
}

// ReadAt reads from the concatenated extents. A read crossing an extent
// boundary is split; a read past the last extent returns io.EOF with the
// bytes that were available.
func (v *FileVolume) ReadAt(p []byte, off int64) (int, error) {
	if v.files == nil {
		return 0, fmt.Errorf("volume is not open")
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}

	total := 0
	for total < len(p) {
		idx, local := v.locate(off + int64(total))
		if idx < 0 {
			return total, io.EOF
		}
		chunk := len(p) - total
		if rest := v.sizes[idx] - local; int64(chunk) > rest {
			chunk = int(rest)
		}
		n, err := v.files[idx].ReadAt(p[total:total+chunk], local)
		total += n
		if err != nil && err != io.EOF {
			return total, err
		}
		if n < chunk {
			return total, io.EOF
		}
	}
	return total, nil
}

// locate maps a volume offset to (extent index, offset within extent).
func (v *FileVolume) locate(off int64) (int, int64) {
	for i, size := range v.sizes {
		if off < size {
			return i, off
		}
		off -= size
	}
	return -1, 0
}

// GroupUUID returns the volume group identifier from the volume header. It
// is the zero UUID before Open.
func (v *FileVolume) GroupUUID() vmfs.UUID {
	if v.info == nil {
		return vmfs.UUID{}
	}
	return v.info.GroupUUID
}

// Info returns the decoded volume header, nil before Open.
func (v *FileVolume) Info() *Info { return v.info }

// DebugLevel reports the debug verbosity this accessor was created with.
func (v *FileVolume) DebugLevel() int { return v.debug }

// Close closes every extent. Idempotent.
func (v *FileVolume) Close() error {
	v.closeFiles()
	return nil
}

func (v *FileVolume) closeFiles() {
	for _, f := range v.files {
		f.Close()
	}
	v.files = nil
	v.sizes = nil
}
