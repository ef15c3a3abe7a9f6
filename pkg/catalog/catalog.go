// Package catalog persists a browsable index of a VMFS datastore in a
// badger database.
//
// Mounting a large datastore from slow or remote media (an S3-hosted image
// in particular) pays the full bootstrap cost on every invocation. The
// catalog trades one tree walk at build time for instant listings
// afterwards: every file's path, type, size and first block reference is
// stored under a namespaced key and served without touching the volume.
//
// Key namespaces:
//
//	Data Type    Prefix  Key Format   Value
//	=========================================================
//	File entry   "e:"    e:<path>     Record (JSON)
//	Filesystem   "fs:"   fs:info      Filesystem (JSON)
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/vmfstools/govmfs/internal/logger"
	"github.com/vmfstools/govmfs/pkg/vmfs"
)

const (
	entryPrefix = "e:"
	fsInfoKey   = "fs:info"
)

// Record is one cataloged file or directory.
type Record struct {
	Path    string `json:"path"`
	Type    string `json:"type"`
	Size    int64  `json:"size"`
	Mtime   uint32 `json:"mtime"`
	BlockID uint32 `json:"block_id"`
}

// Filesystem is the cataloged identity of the datastore.
type Filesystem struct {
	Label     string `json:"label"`
	UUID      string `json:"uuid"`
	BlockSize uint64 `json:"block_size"`
}

// Options selects where the catalog database lives.
type Options struct {
	// Path is the badger directory for a persistent catalog.
	Path string

	// InMemory keeps the database in memory, mainly for tests.
	InMemory bool
}

// Catalog is an open catalog database.
type Catalog struct {
	db *badger.DB
}

// Open opens or creates a catalog database.
func Open(opts Options) (*Catalog, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, fmt.Errorf("catalog: no database path given")
		}
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close releases the database. Safe on nil.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Build walks the mounted filesystem from the root directory and stores one
// record per entry, plus the filesystem identity. Returns the number of
// cataloged entries. An existing catalog for the same paths is overwritten.
func (c *Catalog) Build(fs *vmfs.FileSystem) (int, error) {
	info := fs.Info()
	if info == nil {
		return 0, fmt.Errorf("catalog: filesystem is not open")
	}

	if err := c.putFilesystem(&Filesystem{
		Label:     info.Label,
		UUID:      info.UUID.String(),
		BlockSize: info.BlockSize,
	}); err != nil {
		return 0, err
	}

	count := 0
	err := c.walk(fs, "/", &count)
	if err != nil {
		return count, err
	}
	logger.Info("catalog: %d entries from %q", count, info.Label)
	return count, nil
}

func (c *Catalog) walk(fs *vmfs.FileSystem, dir string, count *int) error {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("listing %q: %w", dir, err)
	}

	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		path := joinPath(dir, e.Name)

		f, err := fs.OpenFile(path)
		if err != nil {
			return fmt.Errorf("opening %q: %w", path, err)
		}
		rec := &Record{
			Path:    path,
			Type:    vmfs.FileTypeName(e.Type),
			Size:    f.Size(),
			Mtime:   f.Inode().Mtime,
			BlockID: e.BlockID,
		}
		f.Close()

		if err := c.put(rec); err != nil {
			return err
		}
		*count++

		if e.IsDir() {
			if err := c.walk(fs, path, count); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

func (c *Catalog) put(rec *Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record for %q: %w", rec.Path, err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(entryPrefix+rec.Path), val)
	})
}

func (c *Catalog) putFilesystem(info *Filesystem) error {
	val, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encoding filesystem record: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(fsInfoKey), val)
	})
}

// Filesystem returns the cataloged datastore identity.
func (c *Catalog) Filesystem() (*Filesystem, error) {
	var info Filesystem
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fsInfoKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &info)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("catalog: no filesystem record, build the catalog first")
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Get returns the record for one exact path.
func (c *Catalog) Get(path string) (*Record, error) {
	var rec Record
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(entryPrefix + normalize(path)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("catalog: %q not found", path)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns every record whose path starts with the given prefix, in key
// order.
func (c *Catalog) List(prefix string) ([]Record, error) {
	var records []Record
	keyPrefix := []byte(entryPrefix + normalize(prefix))

	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
