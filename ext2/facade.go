package ext2

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	ext2errors "github.com/dargueta/ext2fs/errors"
)

// Facade is the single entry point callers use to open an ext2 image and
// drive every other component through it: Config construction, the
// Navigator, one-shot path resolution, and dumpe2fs formatting.
type Facade struct {
	Dev    *BlockDevice
	Config *Config
	GDT    []RawGroupDescriptor
	Alloc  *BitmapAllocator
	Graph  *BlockGraph
	Inodes *InodeStore

	log logrus.FieldLogger
}

// Open constructs a Facade over an already-opened stream. It fails with
// BadImage if the stream is too short to contain a superblock, BadMagic if
// the magic doesn't match, and MissingFeature("filetype") if the required
// feature bit is clear.
func Open(stream io.ReadWriteSeeker, log logrus.FieldLogger) (*Facade, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	sbBuf := make([]byte, SuperblockSize)
	if _, err := stream.Seek(SuperblockOffset, io.SeekStart); err != nil {
		return nil, ext2errors.ErrBadImage.WrapError(err)
	}
	if _, err := io.ReadFull(stream, sbBuf); err != nil {
		return nil, ext2errors.ErrBadImage.WrapError(err)
	}

	rawSB, err := DecodeSuperblock(sbBuf)
	if err != nil {
		return nil, ext2errors.ErrBadImage.WrapError(err)
	}

	parsedCfg, err := NewConfig(rawSB)
	if err != nil {
		return nil, err
	}
	cfg := &parsedCfg

	dev := NewBlockDevice(stream, cfg.BlockSize)
	dev.SetLogger(log)

	gdt, err := readGroupDescriptorTable(dev, *cfg)
	if err != nil {
		return nil, err
	}

	alloc := NewBitmapAllocator(dev, cfg, gdt)
	alloc.SetLogger(log)
	graph := NewBlockGraph(dev, cfg, alloc)
	graph.SetLogger(log)
	inodes := NewInodeStore(dev, cfg, alloc, gdt, graph)
	inodes.SetLogger(log)

	log.WithFields(logrus.Fields{
		"blockSize": cfg.BlockSize, "groupCount": cfg.GroupCount, "uuid": cfg.FilesystemUUID,
	}).Debug("opened ext2 image")

	return &Facade{Dev: dev, Config: cfg, GDT: gdt, Alloc: alloc, Graph: graph, Inodes: inodes, log: log}, nil
}

// Close releases the underlying stream if it implements io.Closer. Callers
// should defer this immediately after a successful Open, per spec.md §5's
// scoped-handle resource model.
func (f *Facade) Close() error {
	if closer, ok := f.Dev.stream.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func readGroupDescriptorTable(dev *BlockDevice, cfg Config) ([]RawGroupDescriptor, error) {
	perBlock := cfg.BlockSize / GroupDescriptorSize
	gdt := make([]RawGroupDescriptor, 0, cfg.GroupCount)

	for i := uint32(0); i < cfg.GroupCount; i++ {
		block := cfg.GDTOffset + BlockNum(i/perBlock)
		offset := (i % perBlock) * GroupDescriptorSize

		buf := make([]byte, GroupDescriptorSize)
		if err := dev.ReadBlock(block, buf, GroupDescriptorSize, offset); err != nil {
			return nil, err
		}
		gd, err := DecodeGroupDescriptor(buf)
		if err != nil {
			return nil, err
		}
		gdt = append(gdt, gd)
	}
	return gdt, nil
}

// readDirectory reads and parses the directory rooted at inode n.
func (f *Facade) readDirectory(n InodeNum) (*Directory, error) {
	in, err := f.Inodes.ReadInode(n)
	if err != nil {
		return nil, err
	}
	if in.Type() != InodeTypeDirectory {
		return nil, ext2errors.ErrNotADirectory
	}

	blocks, err := f.Graph.Walk(in)
	if err != nil {
		return nil, err
	}

	bufs := make(map[BlockNum][]byte, len(blocks))
	for _, blk := range blocks {
		buf := make([]byte, f.Config.BlockSize)
		if err := f.Dev.ReadBlock(blk, buf, f.Config.BlockSize, 0); err != nil {
			return nil, err
		}
		bufs[blk] = buf
	}

	return NewDirectory(n, f.Config.BlockSize, bufs, blocks)
}

// GetNavigator builds a Navigator rooted at "/".
func (f *Facade) GetNavigator() (*Navigator, error) {
	rootDir, err := f.readDirectory(RootInode)
	if err != nil {
		return nil, err
	}
	return NewNavigator(rootDir, f.readDirectory), nil
}

// GetEntry resolves an absolute path to its Entry in one shot, without
// retaining a Navigator. Returns NotFound if any component is missing.
func (f *Facade) GetEntry(absolutePath string) (Entry, error) {
	nav, err := f.GetNavigator()
	if err != nil {
		return Entry{}, err
	}

	absolutePath = strings.TrimPrefix(absolutePath, "/")
	if absolutePath == "" {
		return f.entryFromInode("", RootInode)
	}

	dir, name := splitParentAndName(absolutePath)
	if dir != "" {
		if err := nav.Navigate(dir); err != nil {
			return Entry{}, err
		}
	}

	rec, ok := nav.CurrentDirectory().Lookup(name)
	if !ok {
		return Entry{}, ext2errors.ErrNotFound
	}
	return f.entryFromInode(name, rec.Inode)
}

func (f *Facade) entryFromInode(name string, n InodeNum) (Entry, error) {
	in, err := f.Inodes.ReadInode(n)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{Name: name, Inode: n, Raw: in}
	if in.Type() == InodeTypeDirectory {
		dir, err := f.readDirectory(n)
		if err != nil {
			return Entry{}, err
		}
		entry.Dir = dir
	}
	return entry, nil
}

// splitParentAndName splits a slash-joined relative path into its parent
// directory path (possibly empty) and final component.
func splitParentAndName(path string) (parent, name string) {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

// CreateEntry implements addEntry from spec.md §4.7: it allocates an inode
// of the given type named name inside the directory at parentPath, and
// persists every block the operation touches — the new directory's
// bootstrap `.`/`..` block when fileType is InodeTypeDirectory, the parent
// directory's modified block(s), and the parent's pointer tree when a fresh
// block has to be attached to hold the new record.
func (f *Facade) CreateEntry(parentPath, name string, fileType InodeType) (Entry, error) {
	nav, err := f.GetNavigator()
	if err != nil {
		return Entry{}, err
	}
	if err := nav.Navigate(parentPath); err != nil {
		return Entry{}, err
	}

	parentDir := nav.CurrentDirectory()
	parentInode := nav.CurrentInode()

	if _, exists := parentDir.Lookup(name); exists {
		return Entry{}, ext2errors.ErrExists
	}

	hintGroup := (uint32(parentInode) - 1) / f.Config.Superblock.InodesPerGroup

	childNum, err := f.Alloc.AllocateInode(hintGroup, fileType == InodeTypeDirectory)
	if err != nil {
		return Entry{}, err
	}

	var childInode RawInode
	childInode.SetType(fileType)
	childInode.HardLinks = 1

	if fileType == InodeTypeDirectory {
		childInode.SetPermissions(DefaultDirPermissions)

		// BootstrapRecords' block argument only tags the records' in-memory
		// ContainingBlock field; it isn't part of the encoded bytes, so the
		// buffer can be built before the block it will live in is known.
		records := BootstrapRecords(childNum, parentInode, f.Config.BlockSize, NoBlock)
		bootstrapBlock, err := f.Alloc.AllocateContiguous(EncodeBlock(records, f.Config.BlockSize), f.Config.BlockSize, hintGroup)
		if err != nil {
			return Entry{}, err
		}
		childInode.DirectBlocks[0] = uint32(bootstrapBlock)
		childInode.SetSize(uint64(f.Config.BlockSize))
		childInode.HardLinks = 2 // the `.` entry refers to itself
	} else {
		childInode.SetPermissions(DefaultFilePermissions)
	}

	if err := f.Inodes.WriteInode(childNum, childInode); err != nil {
		return Entry{}, err
	}

	plan, err := parentDir.PlanAppend(name, childNum, inodeTypeToDirEntryFileType(fileType))
	if err != nil {
		return Entry{}, err
	}

	if plan.NeedsNewBlock {
		recordBuf := EncodeBlock([]DirectoryRecord{plan.Record}, f.Config.BlockSize)
		newBlock, err := f.Alloc.AllocateContiguous(recordBuf, f.Config.BlockSize, hintGroup)
		if err != nil {
			return Entry{}, err
		}
		plan.Record.ContainingBlock = newBlock
		if err := f.Inodes.AttachBlocks(parentInode, []BlockNum{newBlock}, hintGroup); err != nil {
			return Entry{}, err
		}
	} else {
		if err := f.persistDirectoryBlockAppend(plan.ShrunkLast, plan.Record); err != nil {
			return Entry{}, err
		}
	}

	parentDir.Commit(plan)

	if fileType == InodeTypeDirectory {
		// A new subdirectory's ".." record points back at parentInode, so
		// the parent gains one hard link.
		parentRaw, err := f.Inodes.ReadInode(parentInode)
		if err != nil {
			return Entry{}, err
		}
		parentRaw.HardLinks++
		if err := f.Inodes.WriteInode(parentInode, parentRaw); err != nil {
			return Entry{}, err
		}
	}

	f.log.WithFields(logrus.Fields{
		"parent": parentInode, "name": name, "child": childNum, "type": fileType,
	}).Info("created directory entry")

	return f.entryFromInode(name, childNum)
}

// Mkdir creates a new, empty subdirectory named name inside the directory at
// parentPath.
func (f *Facade) Mkdir(parentPath, name string) (Entry, error) {
	return f.CreateEntry(parentPath, name, InodeTypeDirectory)
}

// persistDirectoryBlockAppend rewrites a directory block in place after an
// in-block append: the shrunk predecessor record and the new record share
// the same ContainingBlock, so one read-modify-write round trip covers both.
func (f *Facade) persistDirectoryBlockAppend(shrunk, rec DirectoryRecord) error {
	buf := make([]byte, f.Config.BlockSize)
	if err := f.Dev.ReadBlock(rec.ContainingBlock, buf, f.Config.BlockSize, 0); err != nil {
		return err
	}
	encodeDirectoryRecordInto(buf, shrunk)
	encodeDirectoryRecordInto(buf, rec)
	return f.Dev.WriteBlock(rec.ContainingBlock, buf, f.Config.BlockSize, 0)
}

// Dumpe2fs renders the complete text report: the Config header followed by
// one section per group, in the order spec.md §6 requires.
func (f *Facade) Dumpe2fs() (string, error) {
	var b strings.Builder
	b.WriteString(DumpConfigSection(*f.Config, f.GDT))

	for i, gd := range f.GDT {
		blockBitmap, err := f.readRawBitmap(BlockNum(gd.BlockBitmapBlock), f.Config.Superblock.BlocksPerGroup)
		if err != nil {
			return "", err
		}
		inodeBitmap, err := f.readRawBitmap(BlockNum(gd.InodeBitmapBlock), f.Config.Superblock.InodesPerGroup)
		if err != nil {
			return "", err
		}
		b.WriteString(DumpGroupSection(*f.Config, uint32(i), gd, blockBitmap, inodeBitmap))
	}
	return b.String(), nil
}

func (f *Facade) readRawBitmap(block BlockNum, itemCount uint32) ([]byte, error) {
	n := ceilDiv(itemCount, 8)
	buf := make([]byte, f.Config.BlockSize)
	if err := f.Dev.ReadBlock(block, buf, f.Config.BlockSize, 0); err != nil {
		return nil, err
	}
	return buf[:n], nil
}
