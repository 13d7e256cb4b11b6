package ext2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func newInodeStoreFixture(t *testing.T) (*InodeStore, *BitmapAllocator) {
	t.Helper()

	const blockSize = 1024
	const blocksPerGroup = 64
	const inodesPerGroup = 32
	const inodeSize = 128

	raw := make([]byte, blockSize*blocksPerGroup)
	stream := bytesextra.NewReadWriteSeeker(raw)
	dev := NewBlockDevice(stream, blockSize)

	gdt := []RawGroupDescriptor{
		{BlockBitmapBlock: 2, InodeBitmapBlock: 3, InodeTableBlock: 4, FreeBlocksCount: blocksPerGroup, FreeInodesCount: inodesPerGroup},
	}

	cfg := &Config{
		BlockSize:  blockSize,
		GroupCount: 1,
		InodeSize:  inodeSize,
		Superblock: RawSuperblock{
			RawSuperblockFixed: RawSuperblockFixed{
				BlocksPerGroup: blocksPerGroup,
				InodesPerGroup: inodesPerGroup,
				BlockCount:     blocksPerGroup,
				InodeCount:     inodesPerGroup,
				FreeBlockCount: blocksPerGroup,
				FreeInodeCount: inodesPerGroup,
			},
		},
	}

	alloc := NewBitmapAllocator(dev, cfg, gdt)
	// Mark blocks 0-7 used: block 0 (group descriptor write-back, GDTOffset
	// being 0), block 1 (superblock write-back at byte offset 1024), both
	// bitmaps, and the 4-block inode table, so data allocations start at 8.
	bm, err := alloc.readBlockBitmap(0)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		bm.Set(i, true)
	}
	require.NoError(t, alloc.writeBlockBitmap(0, bm))

	graph := NewBlockGraph(dev, cfg, alloc)
	return NewInodeStore(dev, cfg, alloc, gdt, graph), alloc
}

func TestInodeStoreWriteReadRoundTrip(t *testing.T) {
	store, _ := newInodeStoreFixture(t)

	var in RawInode
	in.SetType(InodeTypeFile)
	in.SetPermissions(DefaultFilePermissions)
	in.HardLinks = 1

	require.NoError(t, store.WriteInode(1, in))
	got, err := store.ReadInode(1)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestAllocInodeBumpsDirectoriesCount(t *testing.T) {
	store, alloc := newInodeStoreFixture(t)

	var in RawInode
	in.SetType(InodeTypeDirectory)
	in.SetPermissions(DefaultDirPermissions)

	n, err := store.AllocInode(in, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.EqualValues(t, 1, alloc.gdt[0].DirectoriesCount)

	got, err := store.ReadInode(n)
	require.NoError(t, err)
	assert.Equal(t, InodeTypeDirectory, got.Type())
}

func TestFreeInodeReleasesDataBlocks(t *testing.T) {
	store, alloc := newInodeStoreFixture(t)

	blk, err := alloc.AllocateContiguous(make([]byte, 1024), 1024, 0)
	require.NoError(t, err)

	var in RawInode
	in.SetType(InodeTypeFile)
	in.DirectBlocks[0] = uint32(blk)
	require.NoError(t, store.WriteInode(5, in))

	freeBefore := alloc.gdt[0].FreeBlocksCount
	require.NoError(t, store.FreeInode(5))
	assert.Equal(t, freeBefore+1, alloc.gdt[0].FreeBlocksCount)
}
