package ext2

import (
	"fmt"
	"strings"
)

// dumpTimeFormat matches e2fsprogs' dumpe2fs timestamp rendering, "Day Mon
// DD HH:MM:SS YYYY".
const dumpTimeFormat = "Mon Jan  2 15:04:05 2006"

func stateName(state uint16) string {
	switch state {
	case StateClean:
		return "clean"
	case StateErrors:
		return "with errors"
	default:
		return "unknown"
	}
}

func errorHandlingName(policy uint16) string {
	switch policy {
	case ErrorsContinue:
		return "Continue"
	case ErrorsRemountReadonly:
		return "Remount read-only"
	case ErrorsPanic:
		return "Panic"
	default:
		return "Unknown"
	}
}

func creatorOSName(os uint32) string {
	switch os {
	case OSLinux:
		return "Linux"
	case OSHurd:
		return "GNU/Hurd"
	case OSMasix:
		return "Masix"
	case OSFreeBSD:
		return "FreeBSD"
	case OSLites:
		return "Lites"
	default:
		return "Unknown"
	}
}

// featureFlagNames renders dumpe2fs' "Filesystem features:" line: the
// space-separated union of every optional, required, and read-only-
// compatible feature bit set in sb.Extended, in that fixed order. It
// returns "(none)" when no extended region is present or no bits are set.
func featureFlagNames(sb RawSuperblock) string {
	if !sb.HasExtended {
		return "(none)"
	}

	var names []string
	add := func(bit uint32, mask uint32, name string) {
		if bit&mask != 0 {
			names = append(names, name)
		}
	}

	opt := sb.Extended.OptionalFeatures
	add(opt, FeatureOptHasJournal, "has_journal")
	add(opt, FeatureOptExtAttr, "ext_attr")
	add(opt, FeatureOptResizeInode, "resize_inode")
	add(opt, FeatureOptDirIndex, "dir_index")

	req := sb.Extended.RequiredFeatures
	add(req, FeatureReqCompression, "compression")
	add(req, FeatureReqFiletype, "filetype")

	ro := sb.Extended.ReadOnlyFeatures
	add(ro, FeatureROSparseSuper, "sparse_super")
	add(ro, FeatureROLargeFile, "large_file")
	add(ro, FeatureROBTreeDir, "btree_dir")

	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, " ")
}

// reservedGDTBlocks derives the number of blocks set aside after the group
// descriptor table for future filesystem growth, by comparing where group
// 0's block bitmap actually sits against where it would sit with no
// reserve: gdt[0].blockBitmapBlock - GDTOffset - blocks occupied by the GDT
// itself. Pinned to original_source/src/DiskIOManager.cpp's arithmetic.
func reservedGDTBlocks(cfg Config, gdt []RawGroupDescriptor) uint32 {
	if len(gdt) == 0 {
		return 0
	}
	gdtBlocks := ceilDiv(cfg.GroupCount*GroupDescriptorSize, cfg.BlockSize)
	occupied := uint32(cfg.GDTOffset) + gdtBlocks
	firstBitmapBlock := gdt[0].BlockBitmapBlock
	if firstBitmapBlock <= occupied {
		return 0
	}
	return firstBitmapBlock - occupied
}

// freeRangeList renders the "a, b-c, d" style range list dumpe2fs prints
// for free blocks/inodes in a group, reimplementing the reference's
// findBits run-length scan over the bitmap. base is added to every index so
// callers can render either 0-based block numbers or 1-based inode numbers.
func freeRangeList(bm []byte, count int, base int) string {
	var ranges []string
	runStart := -1

	flush := func(end int) {
		if runStart < 0 {
			return
		}
		if runStart == end {
			ranges = append(ranges, fmt.Sprintf("%d", runStart+base))
		} else {
			ranges = append(ranges, fmt.Sprintf("%d-%d", runStart+base, end+base))
		}
		runStart = -1
	}

	b := bitmapBits(bm)
	for i := 0; i < count; i++ {
		if b.Get(i) {
			flush(i - 1)
			continue
		}
		if runStart < 0 {
			runStart = i
		}
	}
	flush(count - 1)

	if len(ranges) == 0 {
		return "None"
	}
	return strings.Join(ranges, ", ")
}

// DumpConfigSection renders the header fields dumpe2fs prints before the
// per-group sections, in the exact order spec.md §6 requires.
func DumpConfigSection(cfg Config, gdt []RawGroupDescriptor) string {
	var b strings.Builder
	sb := cfg.Superblock

	fmt.Fprintf(&b, "Filesystem volume name:   %s\n", orDefault(cfg.VolumeName, "<none>"))
	fmt.Fprintf(&b, "Last mounted on:          %s\n", orDefault(cfg.LastMountPath, "<not available>"))
	fmt.Fprintf(&b, "Filesystem UUID:          %s\n", cfg.FilesystemUUID)
	fmt.Fprintf(&b, "FileSystem Magic Number:  0x%04X\n", sb.Magic)
	fmt.Fprintf(&b, "Filesystem revision #:    %d\n", sb.VersionMajor)
	fmt.Fprintf(&b, "Filesystem features:      %s\n", featureFlagNames(sb))
	fmt.Fprintf(&b, "Filesystem state:         %s\n", stateName(sb.State))
	fmt.Fprintf(&b, "Errors behavior:          %s\n", errorHandlingName(sb.ErrorHandling))
	fmt.Fprintf(&b, "Filesystem OS type:       %s\n", creatorOSName(sb.CreatorOS))
	fmt.Fprintf(&b, "Inode count:              %d\n", sb.InodeCount)
	fmt.Fprintf(&b, "Block count:              %d\n", sb.BlockCount)
	fmt.Fprintf(&b, "Reserved block count:     %d\n", sb.ReservedBlockCount)
	fmt.Fprintf(&b, "Overhead clusters:        %d\n", reservedGDTBlocks(cfg, gdt))
	fmt.Fprintf(&b, "Free blocks:              %d\n", sb.FreeBlockCount)
	fmt.Fprintf(&b, "Free inodes:              %d\n", sb.FreeInodeCount)
	fmt.Fprintf(&b, "First block:              %d\n", sb.FirstDataBlock)
	fmt.Fprintf(&b, "Block size:               %d\n", cfg.BlockSize)
	fmt.Fprintf(&b, "Fragment size:            %d\n", cfg.FragmentSize)
	fmt.Fprintf(&b, "Blocks per group:         %d\n", sb.BlocksPerGroup)
	fmt.Fprintf(&b, "Inodes per group:         %d\n", sb.InodesPerGroup)
	fmt.Fprintf(&b, "Fragments per group:      %d\n", sb.FragmentsPerGroup)
	fmt.Fprintf(&b, "Inode blocks per group:   %d\n", cfg.InodeBlocksPerGroup)
	fmt.Fprintf(&b, "Last mount time:          %s\n", cfg.LastMountTime.Format(dumpTimeFormat))
	fmt.Fprintf(&b, "Last write time:          %s\n", cfg.LastWriteTime.Format(dumpTimeFormat))
	fmt.Fprintf(&b, "Last checked:             %s\n", cfg.LastCheckTime.Format(dumpTimeFormat))
	fmt.Fprintf(&b, "Mount count:              %d\n", sb.MountCount)
	fmt.Fprintf(&b, "Maximum mount count:      %d\n", int16(sb.MaxMountCount))
	fmt.Fprintf(&b, "Check interval:           %d\n", sb.CheckInterval)
	fmt.Fprintf(&b, "Reserved GID:             %d\n", sb.ReservedGID)
	fmt.Fprintf(&b, "Reserved UID:             %d\n", sb.ReservedUID)
	fmt.Fprintf(&b, "First inode:              %d\n", cfg.FirstNonReservedInode)
	fmt.Fprintf(&b, "Inode size:               %d\n", cfg.InodeSize)
	return b.String()
}

// DumpGroupSection renders one group's section: bitmap/table block
// locations with their offset from the group's own start block, free
// counts, directory count, and free-range lists.
func DumpGroupSection(cfg Config, groupIndex uint32, gd RawGroupDescriptor, blockBitmap, inodeBitmap []byte) string {
	groupStartBlock := BlockNum(groupIndex*cfg.Superblock.BlocksPerGroup) + cfg.groupFirstBlock()
	groupEndBlock := groupStartBlock + BlockNum(cfg.Superblock.BlocksPerGroup) - 1
	if lastBlock := BlockNum(cfg.Superblock.BlockCount) - 1; groupEndBlock > lastBlock {
		groupEndBlock = lastBlock
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Group %d: (Blocks %d-%d)\n", groupIndex, groupStartBlock, groupEndBlock)
	fmt.Fprintf(&b, "  Block bitmap at %d (+%d)\n", gd.BlockBitmapBlock, int64(gd.BlockBitmapBlock)-int64(groupStartBlock))
	fmt.Fprintf(&b, "  Inode bitmap at %d (+%d)\n", gd.InodeBitmapBlock, int64(gd.InodeBitmapBlock)-int64(groupStartBlock))
	fmt.Fprintf(&b, "  Inode table at %d (+%d)\n", gd.InodeTableBlock, int64(gd.InodeTableBlock)-int64(groupStartBlock))
	fmt.Fprintf(&b, "  %d free blocks, %d free inodes, %d directories\n", gd.FreeBlocksCount, gd.FreeInodesCount, gd.DirectoriesCount)
	fmt.Fprintf(&b, "  Free blocks: %s\n", freeRangeList(blockBitmap, int(cfg.Superblock.BlocksPerGroup), int(groupStartBlock)))
	fmt.Fprintf(&b, "  Free inodes: %s\n", freeRangeList(inodeBitmap, int(cfg.Superblock.InodesPerGroup), int(groupIndex*cfg.Superblock.InodesPerGroup)+1))
	return b.String()
}

// groupFirstBlock returns the absolute block number at which group 0
// begins: the first data block, since group indexing is relative to it.
func (cfg Config) groupFirstBlock() BlockNum {
	return BlockNum(cfg.Superblock.FirstDataBlock)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// bitmapBits wraps a raw byte slice in rawBitmap, a local reader in which
// bit j of byte i is item i*8+j.
func bitmapBits(buf []byte) interface{ Get(int) bool } {
	return rawBitmap(buf)
}

type rawBitmap []byte

func (b rawBitmap) Get(i int) bool {
	byteIndex := i / 8
	bitIndex := uint(i % 8)
	if byteIndex >= len(b) {
		return false
	}
	return b[byteIndex]&(1<<bitIndex) != 0
}
