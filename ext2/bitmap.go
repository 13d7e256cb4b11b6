package ext2

import (
	bitmap "github.com/boljen/go-bitmap"
	"github.com/sirupsen/logrus"

	ext2errors "github.com/dargueta/ext2fs/errors"
)

// NoBlock is the sentinel absolute block number returned on allocation
// failure. It's safe because block 0 is never a valid allocated data block.
const NoBlock BlockNum = 0

// BitmapAllocator implements the per-group block and inode bitmap scans in
// spec.md §4.4. It re-reads a group's bitmap on every call rather than
// caching it, so that two allocations against the same group never observe
// a stale picture of free bits.
type BitmapAllocator struct {
	dev *BlockDevice
	cfg *Config
	gdt []RawGroupDescriptor
	log logrus.FieldLogger
}

// NewBitmapAllocator builds an allocator bound to the given device, config
// and in-memory group descriptor table. The allocator mutates the slice in
// place and writes each changed descriptor back to disk itself, along with
// the superblock, whenever it persists a bitmap.
func NewBitmapAllocator(dev *BlockDevice, cfg *Config, gdt []RawGroupDescriptor) *BitmapAllocator {
	return &BitmapAllocator{dev: dev, cfg: cfg, gdt: gdt, log: logrus.StandardLogger()}
}

// SetLogger overrides the allocator's logger, used by the Façade to inject a
// caller-provided logrus.FieldLogger.
func (a *BitmapAllocator) SetLogger(log logrus.FieldLogger) {
	a.log = log
}

// bitmapByteLen returns the number of bytes the group's bitmap should be
// read/written as, truncating the last group to its actual item count per
// spec.md §4.4's edge case.
func (a *BitmapAllocator) bitmapByteLen(groupIndex uint32, itemsPerGroup, totalItems uint32) uint32 {
	if groupIndex == a.cfg.GroupCount-1 && totalItems%itemsPerGroup != 0 {
		remaining := totalItems % itemsPerGroup
		return ceilDiv(remaining, 8)
	}
	return itemsPerGroup / 8
}

func (a *BitmapAllocator) readBlockBitmap(groupIndex uint32) (bitmap.Bitmap, error) {
	n := a.bitmapByteLen(groupIndex, a.cfg.Superblock.BlocksPerGroup, a.cfg.Superblock.BlockCount)
	buf := make([]byte, a.cfg.BlockSize)
	if err := a.dev.ReadBlock(BlockNum(a.gdt[groupIndex].BlockBitmapBlock), buf, a.cfg.BlockSize, 0); err != nil {
		return nil, err
	}
	return bitmap.Bitmap(buf[:n]), nil
}

func (a *BitmapAllocator) readInodeBitmap(groupIndex uint32) (bitmap.Bitmap, error) {
	n := a.bitmapByteLen(groupIndex, a.cfg.Superblock.InodesPerGroup, a.cfg.Superblock.InodeCount)
	buf := make([]byte, a.cfg.BlockSize)
	if err := a.dev.ReadBlock(BlockNum(a.gdt[groupIndex].InodeBitmapBlock), buf, a.cfg.BlockSize, 0); err != nil {
		return nil, err
	}
	return bitmap.Bitmap(buf[:n]), nil
}

// writeBlockBitmap persists bm back to groupIndex's block bitmap, computing
// the delta in set bits and updating the group descriptor and superblock
// free-block counters to match, per spec.md §4.4's accounting invariant. The
// updated group descriptor slot and superblock are both re-encoded and
// written back before returning, exactly as original_source/src/
// DiskIOManager.cpp's writeBlockBitmap does, so a reopened image never loses
// accounting to a stale on-disk counter.
func (a *BitmapAllocator) writeBlockBitmap(groupIndex uint32, bm bitmap.Bitmap) error {
	old, err := a.readBlockBitmap(groupIndex)
	if err != nil {
		return err
	}

	delta := countSetDelta(old, bm)
	buf := make([]byte, a.cfg.BlockSize)
	copy(buf, bm)
	if err := a.dev.WriteBlock(BlockNum(a.gdt[groupIndex].BlockBitmapBlock), buf, a.cfg.BlockSize, 0); err != nil {
		return err
	}

	a.gdt[groupIndex].FreeBlocksCount -= uint16(delta)
	a.cfg.Superblock.FreeBlockCount -= uint32(delta)

	if err := a.persistGroupDescriptor(groupIndex); err != nil {
		return err
	}
	if err := a.persistSuperblock(); err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{"group": groupIndex, "delta": delta}).Debug("persisted block bitmap accounting")
	return nil
}

func (a *BitmapAllocator) writeInodeBitmap(groupIndex uint32, bm bitmap.Bitmap, directoryDelta int) error {
	old, err := a.readInodeBitmap(groupIndex)
	if err != nil {
		return err
	}

	delta := countSetDelta(old, bm)
	buf := make([]byte, a.cfg.BlockSize)
	copy(buf, bm)
	if err := a.dev.WriteBlock(BlockNum(a.gdt[groupIndex].InodeBitmapBlock), buf, a.cfg.BlockSize, 0); err != nil {
		return err
	}

	a.gdt[groupIndex].FreeInodesCount -= uint16(delta)
	a.cfg.Superblock.FreeInodeCount -= uint32(delta)
	a.gdt[groupIndex].DirectoriesCount += uint16(directoryDelta)

	if err := a.persistGroupDescriptor(groupIndex); err != nil {
		return err
	}
	if err := a.persistSuperblock(); err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{"group": groupIndex, "delta": delta}).Debug("persisted inode bitmap accounting")
	return nil
}

// persistGroupDescriptor re-encodes groupIndex's descriptor and writes it
// back to its slot in the on-disk group descriptor table.
func (a *BitmapAllocator) persistGroupDescriptor(groupIndex uint32) error {
	perBlock := a.cfg.BlockSize / GroupDescriptorSize
	block := a.cfg.GDTOffset + BlockNum(groupIndex/perBlock)
	offset := (groupIndex % perBlock) * GroupDescriptorSize
	return a.dev.WriteBlock(block, a.gdt[groupIndex].Encode(), GroupDescriptorSize, offset)
}

// persistSuperblock re-encodes the whole superblock and writes it back to
// its fixed byte offset, regardless of block size: block 0, offset
// SuperblockOffset addresses byte 1024 no matter how big a block is.
func (a *BitmapAllocator) persistSuperblock() error {
	return a.dev.WriteBlock(0, a.cfg.Superblock.Encode(), SuperblockSize, SuperblockOffset)
}

// countSetDelta returns the number of bits that went from clear to set
// between old and updated (negative if more bits were cleared than set).
func countSetDelta(old, updated bitmap.Bitmap) int {
	delta := 0
	for i := 0; i < len(updated)*8; i++ {
		wasSet := old.Get(i)
		isSet := updated.Get(i)
		if isSet && !wasSet {
			delta++
		} else if wasSet && !isSet {
			delta--
		}
	}
	return delta
}

// groupOrder returns the (hint+k) mod groupCount visiting order spec.md
// §4.4 requires.
func (a *BitmapAllocator) groupOrder(hintGroup uint32) []uint32 {
	order := make([]uint32, a.cfg.GroupCount)
	for k := uint32(0); k < a.cfg.GroupCount; k++ {
		order[k] = (hintGroup + k) % a.cfg.GroupCount
	}
	return order
}

// AllocateContiguous finds N = ceil(size/blockSize) consecutive free blocks
// within a single group, writes buf into them, and returns the absolute
// block number of the first one.
func (a *BitmapAllocator) AllocateContiguous(buf []byte, size uint32, hintGroup uint32) (BlockNum, error) {
	n := ceilDiv(size, a.cfg.BlockSize)

	for _, g := range a.groupOrder(hintGroup) {
		if uint32(a.gdt[g].FreeBlocksCount) < n {
			continue
		}

		bm, err := a.readBlockBitmap(g)
		if err != nil {
			return NoBlock, err
		}

		firstBit, ok := findZeroRun(bm, int(n))
		if !ok {
			continue
		}

		for i := 0; i < int(n); i++ {
			bm.Set(firstBit+i, true)
		}
		if err := a.writeBlockBitmap(g, bm); err != nil {
			return NoBlock, err
		}

		first := BlockNum(g*a.cfg.Superblock.BlocksPerGroup + uint32(firstBit))
		if err := a.writeDataBlocks(first, n, buf, size); err != nil {
			return NoBlock, err
		}
		a.log.WithFields(logrus.Fields{"group": g, "first": first, "count": n}).Info("allocated contiguous blocks")
		return first, nil
	}

	return NoBlock, ext2errors.ErrNoContiguousSpace
}

// AllocateNonContiguous finds N free blocks anywhere on the device, scanning
// groups in hint order and taking as many free bits as each offers.
func (a *BitmapAllocator) AllocateNonContiguous(buf []byte, size uint32, hintGroup uint32) ([]BlockNum, error) {
	n := ceilDiv(size, a.cfg.BlockSize)
	if a.cfg.Superblock.FreeBlockCount < n {
		return nil, ext2errors.ErrNoSpace
	}

	var result []BlockNum
	remaining := int(n)
	written := uint32(0)

	for _, g := range a.groupOrder(hintGroup) {
		if remaining == 0 {
			break
		}

		bm, err := a.readBlockBitmap(g)
		if err != nil {
			return nil, err
		}

		dirty := false
		for i := 0; i < len(bm)*8 && remaining > 0; i++ {
			if bm.Get(i) {
				continue
			}
			bm.Set(i, true)
			dirty = true
			remaining--

			abs := BlockNum(g*a.cfg.Superblock.BlocksPerGroup + uint32(i))
			chunkSize := a.cfg.BlockSize
			if size-written < chunkSize {
				chunkSize = size - written
			}
			if err := a.dev.WriteBlock(abs, buf[written:written+chunkSize], chunkSize, 0); err != nil {
				return nil, err
			}
			written += chunkSize
			result = append(result, abs)
		}

		if dirty {
			if err := a.writeBlockBitmap(g, bm); err != nil {
				return nil, err
			}
		}
	}

	if remaining > 0 {
		return nil, ext2errors.ErrNoSpace
	}
	a.log.WithFields(logrus.Fields{"count": len(result), "hintGroup": hintGroup}).Info("allocated non-contiguous blocks")
	return result, nil
}

func (a *BitmapAllocator) writeDataBlocks(first BlockNum, n uint32, buf []byte, size uint32) error {
	written := uint32(0)
	for i := uint32(0); i < n; i++ {
		chunkSize := a.cfg.BlockSize
		if size-written < chunkSize {
			chunkSize = size - written
		}
		if chunkSize == 0 {
			break
		}
		if err := a.dev.WriteBlock(first+BlockNum(i), buf[written:written+chunkSize], chunkSize, 0); err != nil {
			return err
		}
		written += chunkSize
	}
	return nil
}

// findZeroRun scans bm for the first run of n consecutive clear bits,
// returning its starting bit index.
func findZeroRun(bm bitmap.Bitmap, n int) (int, bool) {
	runStart := 0
	runLen := 0
	for i := 0; i < len(bm)*8; i++ {
		if bm.Get(i) {
			runLen = 0
			continue
		}
		if runLen == 0 {
			runStart = i
		}
		runLen++
		if runLen == n {
			return runStart, true
		}
	}
	return 0, false
}

// AllocateInode finds the first free inode bit (anywhere, starting at
// hintGroup), marks it used, and returns its 1-based inode number. isDir
// bumps the group's directory counter.
func (a *BitmapAllocator) AllocateInode(hintGroup uint32, isDir bool) (InodeNum, error) {
	for _, g := range a.groupOrder(hintGroup) {
		bm, err := a.readInodeBitmap(g)
		if err != nil {
			return 0, err
		}

		idx, ok := findZeroRun(bm, 1)
		if !ok {
			continue
		}

		bm.Set(idx, true)
		dirDelta := 0
		if isDir {
			dirDelta = 1
		}
		if err := a.writeInodeBitmap(g, bm, dirDelta); err != nil {
			return 0, err
		}

		result := InodeNum(g*a.cfg.Superblock.InodesPerGroup+uint32(idx)) + 1
		a.log.WithFields(logrus.Fields{"inode": result, "group": g, "isDir": isDir}).Info("allocated inode")
		return result, nil
	}
	return 0, ext2errors.ErrNoSpace
}

// FreeInodeBit clears the given inode's bit, decrementing the directory
// counter when applicable.
func (a *BitmapAllocator) FreeInodeBit(n InodeNum, wasDir bool) error {
	g := uint32(n-1) / a.cfg.Superblock.InodesPerGroup
	idx := uint32(n-1) % a.cfg.Superblock.InodesPerGroup

	bm, err := a.readInodeBitmap(g)
	if err != nil {
		return err
	}
	bm.Set(int(idx), false)

	dirDelta := 0
	if wasDir {
		dirDelta = -1
	}
	if err := a.writeInodeBitmap(g, bm, dirDelta); err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{"inode": n, "wasDir": wasDir}).Info("freed inode")
	return nil
}

// FreeBlock clears a single absolute block's bit.
func (a *BitmapAllocator) FreeBlock(blk BlockNum) error {
	g := uint32(blk) / a.cfg.Superblock.BlocksPerGroup
	idx := uint32(blk) % a.cfg.Superblock.BlocksPerGroup

	bm, err := a.readBlockBitmap(g)
	if err != nil {
		return err
	}
	bm.Set(int(idx), false)
	if err := a.writeBlockBitmap(g, bm); err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{"block": blk}).Info("freed block")
	return nil
}
