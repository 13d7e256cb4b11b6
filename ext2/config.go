package ext2

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	ext2errors "github.com/dargueta/ext2fs/errors"
)

// DefaultInodeSize is used when the superblock has no extended region
// (versionMajor < 1), per spec.md §4.3.
const DefaultInodeSize = 128

// DefaultFirstNonReservedInode is used when the superblock has no extended
// region, per spec.md §4.3.
const DefaultFirstNonReservedInode = 11

// Config is the derived, cached view of the superblock and group descriptor
// table that the rest of the engine consults instead of re-deriving these
// values from the raw structures on every operation.
type Config struct {
	Superblock RawSuperblock

	BlockSize           uint32
	FragmentSize         uint32
	GroupCount           uint32
	InodeBlocksPerGroup  uint32
	GDTOffset            BlockNum
	InodeSize            uint16
	FirstNonReservedInode uint32

	LastMountTime    time.Time
	LastWriteTime    time.Time
	LastCheckTime    time.Time
	FilesystemUUID   string
	VolumeName       string
	LastMountPath    string
}

// NewConfig derives a Config from a decoded superblock, validating the
// invariants spec.md §4.3 requires before the engine can safely operate on
// the image.
func NewConfig(sb RawSuperblock) (Config, error) {
	if sb.Magic != Ext2Magic {
		return Config{}, ext2errors.ErrBadMagic
	}

	var merr *multierror.Error

	cfg := Config{Superblock: sb}
	cfg.BlockSize = 1024 << sb.LogBlockSize
	cfg.FragmentSize = 1024 << sb.LogFragmentSize
	if sb.BlocksPerGroup == 0 {
		merr = multierror.Append(merr, ext2errors.ErrInvalidArgument.WithMessage("blocksPerGroup is zero"))
	} else {
		cfg.GroupCount = ceilDiv(sb.BlockCount, sb.BlocksPerGroup)
	}

	if cfg.BlockSize == 1024 {
		cfg.GDTOffset = 2
	} else {
		cfg.GDTOffset = 1
	}

	if sb.HasExtended {
		cfg.InodeSize = sb.Extended.InodeSize
		cfg.FirstNonReservedInode = sb.Extended.FirstNonReservedInode

		if sb.Extended.RequiredFeatures&FeatureReqFiletype == 0 {
			merr = multierror.Append(merr, ext2errors.MissingFeature("filetype"))
		}

		cfg.FilesystemUUID = formatUUID(sb.Extended.FilesystemID)
		cfg.VolumeName = cStringFromBytes(sb.Extended.VolumeName[:])
		cfg.LastMountPath = cStringFromBytes(sb.Extended.LastMountPath[:])
	} else {
		cfg.InodeSize = DefaultInodeSize
		cfg.FirstNonReservedInode = DefaultFirstNonReservedInode
		// Revision 0 predates the filetype feature and the engine requires
		// it unconditionally, per spec.md §4.3.
		merr = multierror.Append(merr, ext2errors.MissingFeature("filetype"))
	}

	if cfg.InodeSize > 0 {
		cfg.InodeBlocksPerGroup = (uint32(cfg.InodeSize) * sb.InodesPerGroup) / cfg.BlockSize
	}

	cfg.LastMountTime = time.Unix(int64(sb.LastMountTime), 0).UTC()
	cfg.LastWriteTime = time.Unix(int64(sb.LastWriteTime), 0).UTC()
	cfg.LastCheckTime = time.Unix(int64(sb.LastCheckTime), 0).UTC()

	if err := merr.ErrorOrNil(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func ceilDiv(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// formatUUID renders a 16-byte filesystem ID as canonical 8-4-4-4-12 hex.
func formatUUID(raw [16]byte) string {
	id, err := uuid.FromBytes(raw[:])
	if err != nil {
		return uuid.Nil.String()
	}
	return id.String()
}

// cStringFromBytes trims a fixed-width, NUL-padded on-disk string field down
// to its logical contents.
func cStringFromBytes(raw []byte) string {
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}
