package ext2

// Ext2Magic is the fixed magic number every valid ext2 superblock carries.
const Ext2Magic = 0xEF53

// SuperblockOffset is the fixed byte offset of the superblock within the
// image.
const SuperblockOffset = 1024

// SuperblockSize is the fixed, padded size of the on-disk superblock record.
const SuperblockSize = 1024

// Filesystem state values (RawSuperblock.State).
const (
	StateClean  = 1
	StateErrors = 2
)

// Error handling policy values (RawSuperblock.ErrorHandling).
const (
	ErrorsContinue        = 1
	ErrorsRemountReadonly = 2
	ErrorsPanic           = 3
)

// Creator OS values (RawSuperblock.CreatorOS).
const (
	OSLinux   = 0
	OSHurd    = 1
	OSMasix   = 2
	OSFreeBSD = 3
	OSLites   = 4
)

// Optional feature flags.
const (
	FeatureOptHasJournal  = 0x0004
	FeatureOptExtAttr     = 0x0008
	FeatureOptResizeInode = 0x0010
	FeatureOptDirIndex    = 0x0020
)

// Required feature flags.
const (
	FeatureReqCompression = 0x0001
	FeatureReqFiletype    = 0x0002
)

// Read-only feature flags.
const (
	FeatureROSparseSuper = 0x0001
	FeatureROLargeFile   = 0x0002
	FeatureROBTreeDir    = 0x0004
)

// RawSuperblockFixed is the 84-byte portion of the superblock present in
// every ext2 revision, starting at SuperblockOffset. Field layout is pinned
// to _examples/original_source/src/SuperBlock.hpp.
type RawSuperblockFixed struct {
	InodeCount         uint32
	BlockCount         uint32
	ReservedBlockCount uint32
	FreeBlockCount     uint32
	FreeInodeCount     uint32
	FirstDataBlock     uint32
	LogBlockSize       uint32
	LogFragmentSize    uint32
	BlocksPerGroup     uint32
	FragmentsPerGroup  uint32
	InodesPerGroup     uint32
	LastMountTime      uint32
	LastWriteTime      uint32
	MountCount         uint16
	MaxMountCount      uint16
	Magic              uint16
	State              uint16
	ErrorHandling      uint16
	VersionMinor       uint16
	LastCheckTime      uint32
	CheckInterval      uint32
	CreatorOS          uint32
	VersionMajor       uint32
	ReservedUID        uint16
	ReservedGID        uint16
}

const rawSuperblockFixedSize = 84

// RawSuperblockExtended is the extended region present when VersionMajor >= 1.
type RawSuperblockExtended struct {
	FirstNonReservedInode uint32
	InodeSize             uint16
	BlockGroupNumber      uint16
	OptionalFeatures      uint32
	RequiredFeatures      uint32
	ReadOnlyFeatures      uint32
	FilesystemID          [16]byte
	VolumeName            [16]byte
	LastMountPath         [64]byte
}

const rawSuperblockExtendedSize = 4 + 2 + 2 + 4 + 4 + 4 + 16 + 16 + 64

// RawSuperblock is the full decoded on-disk superblock.
type RawSuperblock struct {
	RawSuperblockFixed
	Extended RawSuperblockExtended
	HasExtended bool
}

// DecodeSuperblock decodes a 1024-byte superblock record. It does not
// validate the magic number or feature flags; callers check those via
// Config, per spec.md §4.3.
func DecodeSuperblock(data []byte) (RawSuperblock, error) {
	if len(data) < SuperblockSize {
		return RawSuperblock{}, ErrShortRead("superblock", SuperblockSize, len(data))
	}

	var sb RawSuperblock
	if err := decodeBinary(data[:rawSuperblockFixedSize], &sb.RawSuperblockFixed); err != nil {
		return RawSuperblock{}, err
	}

	if sb.VersionMajor >= 1 {
		sb.HasExtended = true
		extData := data[rawSuperblockFixedSize : rawSuperblockFixedSize+rawSuperblockExtendedSize]
		if err := decodeBinary(extData, &sb.Extended); err != nil {
			return RawSuperblock{}, err
		}
	}
	return sb, nil
}

// Encode serializes the superblock back to a 1024-byte buffer, zero-padded.
func (sb RawSuperblock) Encode() []byte {
	buf := make([]byte, SuperblockSize)
	fixed := encodeBinary(sb.RawSuperblockFixed)
	copy(buf, fixed)

	if sb.VersionMajor >= 1 {
		ext := encodeBinary(sb.Extended)
		copy(buf[rawSuperblockFixedSize:], ext)
	}
	return buf
}
