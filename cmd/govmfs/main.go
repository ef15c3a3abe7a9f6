// Command govmfs inspects VMFS datastores read-only.
//
// Usage:
//
//	govmfs <command> [flags] [extent ...]
//
// Commands:
//
//	init      write a default configuration file
//	info      show filesystem information
//	ls        list a directory
//	cat       print a file's contents
//	bitmaps   show resource allocator usage
//	index     build the datastore catalog
//	lookup    query the datastore catalog
//
// Extent paths given on the command line override the configured volume.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/vmfstools/govmfs/internal/logger"
	"github.com/vmfstools/govmfs/pkg/catalog"
	"github.com/vmfstools/govmfs/pkg/config"
	"github.com/vmfstools/govmfs/pkg/vmfs"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var run func(*flag.FlagSet, []string) error
	switch cmd {
	case "init":
		run = cmdInit
	case "info":
		run = cmdInfo
	case "ls":
		run = cmdLs
	case "cat":
		run = cmdCat
	case "bitmaps":
		run = cmdBitmaps
	case "index":
		run = cmdIndex
	case "lookup":
		run = cmdLookup
	default:
		fmt.Fprintf(os.Stderr, "govmfs: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	if err := run(fs, args); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: govmfs <init|info|ls|cat|bitmaps|index|lookup> [flags] [extent ...]")
}

func cmdInit(fs *flag.FlagSet, args []string) error {
	path := fs.String("config", "govmfs.yaml", "Where to write the config file")
	force := fs.Bool("force", false, "Overwrite an existing config file")
	fs.Parse(args)

	written, err := config.InitConfig(*path, *force)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", written)
	return nil
}

// commonFlags registers the flags every volume-touching command shares.
func commonFlags(fs *flag.FlagSet) (configPath, logLevel *string) {
	configPath = fs.String("config", "", "Path to config file")
	logLevel = fs.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	return
}

// mount loads configuration, builds the accessor and opens the filesystem.
// The caller must Close the returned filesystem.
func mount(configPath, logLevel string, extents []string) (*vmfs.FileSystem, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger.SetLevel(cfg.Logging.Level)

	vol, err := config.CreateAccessor(context.Background(), &cfg.Volume, extents)
	if err != nil {
		return nil, nil, err
	}

	fs := vmfs.Create(vol)
	if err := fs.Open(); err != nil {
		fs.Close()
		return nil, nil, err
	}
	return fs, cfg, nil
}

func cmdInfo(fs *flag.FlagSet, args []string) error {
	configPath, logLevel := commonFlags(fs)
	fs.Parse(args)

	mounted, _, err := mount(*configPath, *logLevel, fs.Args())
	if err != nil {
		return err
	}
	defer mounted.Close()

	info := mounted.Info()
	fmt.Printf("Volume version : %d\n", info.VolVersion)
	fmt.Printf("Version        : %d\n", info.Version)
	fmt.Printf("Label          : %s\n", info.Label)
	fmt.Printf("UUID           : %s\n", info.UUID)
	fmt.Printf("Block size     : %d (0x%x)\n", info.BlockSize, info.BlockSize)
	return nil
}

func cmdLs(fs *flag.FlagSet, args []string) error {
	configPath, logLevel := commonFlags(fs)
	long := fs.Bool("l", false, "Long listing")
	path := fs.String("path", "/", "Directory to list")
	fs.Parse(args)

	mounted, _, err := mount(*configPath, *logLevel, fs.Args())
	if err != nil {
		return err
	}
	defer mounted.Close()

	entries, err := mounted.ReadDir(*path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !*long {
			fmt.Println(e.Name)
			continue
		}
		f, err := mounted.OpenFile(joinPath(*path, e.Name))
		if err != nil {
			return err
		}
		fmt.Printf("%-8s %12d %s\n", vmfs.FileTypeName(e.Type), f.Size(), e.Name)
		f.Close()
	}
	return nil
}

func cmdCat(fs *flag.FlagSet, args []string) error {
	configPath, logLevel := commonFlags(fs)
	path := fs.String("path", "", "File to print")
	fs.Parse(args)

	if *path == "" {
		return fmt.Errorf("cat: -path is required")
	}

	mounted, _, err := mount(*configPath, *logLevel, fs.Args())
	if err != nil {
		return err
	}
	defer mounted.Close()

	f, err := mounted.OpenFile(*path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(os.Stdout, f)
	return err
}

func cmdBitmaps(fs *flag.FlagSet, args []string) error {
	configPath, logLevel := commonFlags(fs)
	fs.Parse(args)

	mounted, _, err := mount(*configPath, *logLevel, fs.Args())
	if err != nil {
		return err
	}
	defer mounted.Close()

	bitmaps := []struct {
		name string
		b    *vmfs.Bitmap
	}{
		{"FBB", mounted.FBB()},
		{"FDC", mounted.FDC()},
		{"PBC", mounted.PBC()},
		{"SBC", mounted.SBC()},
	}
	for _, bm := range bitmaps {
		used, err := bm.b.AllocatedItems()
		if err != nil {
			return fmt.Errorf("%s: %w", bm.name, err)
		}
		h := bm.b.Header
		fmt.Printf("%s: %d/%d items used, %d bytes/item, %d area(s)\n",
			bm.name, used, h.TotalItems, h.DataSize, h.AreaCount)
	}
	return nil
}

func cmdIndex(fs *flag.FlagSet, args []string) error {
	configPath, logLevel := commonFlags(fs)
	dbPath := fs.String("db", "", "Catalog database directory (overrides config)")
	fs.Parse(args)

	mounted, cfg, err := mount(*configPath, *logLevel, fs.Args())
	if err != nil {
		return err
	}
	defer mounted.Close()

	opts := catalog.Options{Path: cfg.Catalog.Path, InMemory: cfg.Catalog.InMemory}
	if *dbPath != "" {
		opts = catalog.Options{Path: *dbPath}
	}

	cat, err := catalog.Open(opts)
	if err != nil {
		return err
	}
	defer cat.Close()

	n, err := cat.Build(mounted)
	if err != nil {
		return err
	}
	fmt.Printf("cataloged %d entries\n", n)
	return nil
}

func cmdLookup(fs *flag.FlagSet, args []string) error {
	configPath, logLevel := commonFlags(fs)
	dbPath := fs.String("db", "", "Catalog database directory (overrides config)")
	prefix := fs.String("prefix", "/", "Path prefix to list")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	logger.SetLevel(cfg.Logging.Level)

	opts := catalog.Options{Path: cfg.Catalog.Path, InMemory: cfg.Catalog.InMemory}
	if *dbPath != "" {
		opts = catalog.Options{Path: *dbPath}
	}

	cat, err := catalog.Open(opts)
	if err != nil {
		return err
	}
	defer cat.Close()

	info, err := cat.Filesystem()
	if err != nil {
		return err
	}
	fmt.Printf("datastore %q (%s)\n", info.Label, info.UUID)

	records, err := cat.List(*prefix)
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Printf("%-8s %12d %s\n", r.Type, r.Size, r.Path)
	}
	return nil
}

func joinPath(dir, name string) string {
	if dir == "/" || dir == "" {
		return "/" + name
	}
	return dir + "/" + name
}
