package ext2

// GroupDescriptorSize is the fixed on-disk size of one group descriptor
// record.
const GroupDescriptorSize = 32

// RawGroupDescriptor is the 32-byte on-disk group descriptor record, field
// layout pinned to _examples/original_source/src/GroupDescriptor.hpp.
type RawGroupDescriptor struct {
	BlockBitmapBlock uint32
	InodeBitmapBlock uint32
	InodeTableBlock  uint32
	FreeBlocksCount  uint16
	FreeInodesCount  uint16
	DirectoriesCount uint16
	Padding          uint16
	Reserved         [3]uint32
}

// DecodeGroupDescriptor decodes one 32-byte group descriptor record.
func DecodeGroupDescriptor(data []byte) (RawGroupDescriptor, error) {
	if len(data) < GroupDescriptorSize {
		return RawGroupDescriptor{}, ErrShortRead("group descriptor", GroupDescriptorSize, len(data))
	}
	var gd RawGroupDescriptor
	if err := decodeBinary(data[:GroupDescriptorSize], &gd); err != nil {
		return RawGroupDescriptor{}, err
	}
	return gd, nil
}

// Encode serializes the group descriptor back to its 32-byte on-disk form.
func (gd RawGroupDescriptor) Encode() []byte {
	return encodeBinary(gd)
}
