package ext2

import "github.com/sirupsen/logrus"

// InodeStore reads, writes, allocates and frees inode records, per
// spec.md §4.5.
type InodeStore struct {
	dev   *BlockDevice
	cfg   *Config
	alloc *BitmapAllocator
	gdt   []RawGroupDescriptor
	graph *BlockGraph
	log   logrus.FieldLogger
}

// NewInodeStore builds an InodeStore over the given components.
func NewInodeStore(dev *BlockDevice, cfg *Config, alloc *BitmapAllocator, gdt []RawGroupDescriptor, graph *BlockGraph) *InodeStore {
	return &InodeStore{dev: dev, cfg: cfg, alloc: alloc, gdt: gdt, graph: graph, log: logrus.StandardLogger()}
}

// SetLogger overrides the store's logger, used by the Façade to inject a
// caller-provided logrus.FieldLogger.
func (s *InodeStore) SetLogger(log logrus.FieldLogger) {
	s.log = log
}

func (s *InodeStore) locate(n InodeNum) (group uint32, block BlockNum, offset uint32) {
	idx := uint32(n) - 1
	g := idx / s.cfg.Superblock.InodesPerGroup
	within := idx % s.cfg.Superblock.InodesPerGroup

	inodeSize := uint32(s.cfg.InodeSize)
	perBlock := s.cfg.BlockSize / inodeSize

	blk := BlockNum(s.gdt[g].InodeTableBlock) + BlockNum((within*inodeSize)/s.cfg.BlockSize)
	off := (within % perBlock) * inodeSize
	return g, blk, off
}

// ReadInode decodes the inode record for n.
func (s *InodeStore) ReadInode(n InodeNum) (RawInode, error) {
	_, block, offset := s.locate(n)

	buf := make([]byte, s.cfg.InodeSize)
	if err := s.dev.ReadBlock(block, buf, uint32(s.cfg.InodeSize), offset); err != nil {
		return RawInode{}, err
	}
	return DecodeInode(buf)
}

// WriteInode serializes in back to n's on-disk slot.
func (s *InodeStore) WriteInode(n InodeNum, in RawInode) error {
	_, block, offset := s.locate(n)
	return s.dev.WriteBlock(block, in.Encode(), uint32(s.cfg.InodeSize), offset)
}

// AllocInode allocates a free inode bit, writes initialInode into its slot,
// and returns its number.
func (s *InodeStore) AllocInode(initialInode RawInode, hintGroup uint32) (InodeNum, error) {
	isDir := initialInode.Type() == InodeTypeDirectory
	n, err := s.alloc.AllocateInode(hintGroup, isDir)
	if err != nil {
		return 0, err
	}
	if err := s.WriteInode(n, initialInode); err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{"inode": n, "type": initialInode.Type()}).Info("allocated and wrote inode")
	return n, nil
}

// FreeInode releases every data block (and intermediate indirect-pointer
// block) reachable from n's inode, then clears its bitmap bit. It does not
// recurse into a directory's children; the caller is responsible for
// ensuring the subtree is already empty or otherwise handled.
func (s *InodeStore) FreeInode(n InodeNum) error {
	in, err := s.ReadInode(n)
	if err != nil {
		return err
	}

	dataBlocks, err := s.graph.Walk(in)
	if err != nil {
		return err
	}
	tableBlocks, err := s.graph.IndirectTableBlocks(in)
	if err != nil {
		return err
	}

	for _, blk := range append(dataBlocks, tableBlocks...) {
		if err := s.alloc.FreeBlock(blk); err != nil {
			return err
		}
	}

	if err := s.alloc.FreeInodeBit(n, in.Type() == InodeTypeDirectory); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"inode": n, "blocksFreed": len(dataBlocks) + len(tableBlocks)}).Info("freed inode and its blocks")
	return nil
}

// AttachBlocks extends n's block pointer tree with pending, persisting the
// updated inode record.
func (s *InodeStore) AttachBlocks(n InodeNum, pending []BlockNum, hintGroup uint32) error {
	in, err := s.ReadInode(n)
	if err != nil {
		return err
	}
	if err := s.graph.AttachBlocks(&in, pending, hintGroup); err != nil {
		return err
	}
	return s.WriteInode(n, in)
}
