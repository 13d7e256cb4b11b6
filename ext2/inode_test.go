package ext2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawInodeTypeAndPermissionsPacking(t *testing.T) {
	var in RawInode
	in.SetType(InodeTypeDirectory)
	in.SetPermissions(DefaultDirPermissions)

	assert.Equal(t, InodeTypeDirectory, in.Type())
	assert.EqualValues(t, DefaultDirPermissions, in.Permissions())

	in.SetType(InodeTypeFile)
	assert.Equal(t, InodeTypeFile, in.Type())
	assert.EqualValues(t, DefaultDirPermissions, in.Permissions(), "changing type must not disturb permissions")
}

func TestRawInodeSizeSplit(t *testing.T) {
	var in RawInode
	in.SetSize(0x1_0000_0002)
	assert.EqualValues(t, 1, in.SizeHigh)
	assert.EqualValues(t, 2, in.SizeLow)
	assert.EqualValues(t, 0x1_0000_0002, in.Size())
}

func TestDecodeInodeRoundTrip(t *testing.T) {
	var in RawInode
	in.SetType(InodeTypeFile)
	in.SetPermissions(DefaultFilePermissions)
	in.SetSize(4096)
	in.HardLinks = 1
	in.DirectBlocks[0] = 10
	in.DirectBlocks[1] = 11
	in.SinglyIndirect = 99

	encoded := in.Encode()
	require.Len(t, encoded, RawInodeSize)

	decoded, err := DecodeInode(encoded)
	require.NoError(t, err)
	assert.Equal(t, in, decoded)
}

func TestDirEntryFileTypeRoundTrip(t *testing.T) {
	types := []InodeType{
		InodeTypeFile, InodeTypeDirectory, InodeTypeCharDev, InodeTypeBlockDev,
		InodeTypeFIFO, InodeTypeSocket, InodeTypeSymlink,
	}
	for _, ty := range types {
		ft := inodeTypeToDirEntryFileType(ty)
		assert.Equal(t, ty, dirEntryFileTypeToInodeType(ft))
	}
}

func TestDirEntryFileTypeUnknownParsesWithoutError(t *testing.T) {
	assert.Equal(t, InodeTypeUnknown, dirEntryFileTypeToInodeType(0))
	assert.EqualValues(t, 0, inodeTypeToDirEntryFileType(InodeTypeUnknown))
}
