package vmfs

import (
	"fmt"
	"io"
	"strings"
)

// DirEntry is one decoded directory record.
type DirEntry struct {
	Type     uint32
	BlockID  uint32
	RecordID uint32
	Name     string
}

// IsDir reports whether the entry names a directory.
func (e DirEntry) IsDir() bool { return e.Type == FileTypeDir }

// readDir decodes every record of an open directory file.
func readDir(dir *File) ([]DirEntry, error) {
	size := dir.Size()
	buf := make([]byte, direntSize)
	var entries []DirEntry
	for pos := int64(0); pos+direntSize <= size; pos += direntSize {
		if _, err := dir.ReadAt(buf, pos); err != nil && err != io.EOF {
			return nil, fmt.Errorf("reading directory record at %d: %w", pos, err)
		}
		typ := readLE32(buf, direntOfsType)
		if typ == 0 {
			continue
		}
		entries = append(entries, DirEntry{
			Type:     typ,
			BlockID:  readLE32(buf, direntOfsBlkID),
			RecordID: readLE32(buf, direntOfsRecID),
			Name:     cString(buf[direntOfsName : direntOfsName+direntNameSize]),
		})
	}
	return entries, nil
}

// searchDir looks up one name in an open directory file.
func searchDir(dir *File, name string) (DirEntry, error) {
	entries, err := readDir(dir)
	if err != nil {
		return DirEntry{}, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return DirEntry{}, fmt.Errorf("%q: %w", name, ErrNotFound)
}

// resolvePath walks a slash-separated path from the root directory and
// returns the raw inode image of the final component. The empty path and
// "/" resolve to the root directory itself.
func (fs *FileSystem) resolvePath(path string) ([]byte, error) {
	if fs.root == nil {
		return nil, ErrClosed
	}

	dir := fs.root
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		return fs.rootInode, nil
	}

	for i, name := range parts {
		entry, err := searchDir(dir, name)
		if dir != fs.root {
			dir.Close()
		}
		if err != nil {
			return nil, err
		}

		img, err := fs.readInodeImage(entry.BlockID)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", name, err)
		}
		if i == len(parts)-1 {
			return img, nil
		}

		next, err := fs.bindInode(img)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", name, err)
		}
		if next.ino.Type != FileTypeDir {
			next.Close()
			return nil, fmt.Errorf("%q is not a directory: %w", name, ErrNotFound)
		}
		dir = next
	}

	return nil, fmt.Errorf("%q: %w", path, ErrNotFound)
}

// readInodeImage fetches an inode image from the descriptor allocator given
// a file-descriptor block identifier.
func (fs *FileSystem) readInodeImage(blkID uint32) ([]byte, error) {
	if blkType(blkID) != blkTypeFD {
		return nil, fmt.Errorf("block id 0x%08x does not name a file descriptor", blkID)
	}
	if fs.fdc == nil {
		return nil, fmt.Errorf("descriptor allocator not open")
	}
	buf := make([]byte, fs.fdc.Header.DataSize)
	if err := fs.fdc.GetItem(blkFDEntry(blkID), blkFDItem(blkID), buf); err != nil {
		return nil, err
	}
	if len(buf) < inodeSize {
		return nil, fmt.Errorf("descriptor item is %d bytes, want at least %d", len(buf), inodeSize)
	}
	return buf[:inodeSize], nil
}
