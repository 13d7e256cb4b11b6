package ext2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlockSize = 1024

func TestBootstrapRecordsSumToBlockSize(t *testing.T) {
	recs := BootstrapRecords(2, 2, testBlockSize, 5)
	require.Len(t, recs, 2)
	assert.EqualValues(t, 12, recs[0].RecLen)
	assert.EqualValues(t, testBlockSize-12, recs[1].RecLen)
	assert.Equal(t, ".", recs[0].Name)
	assert.Equal(t, "..", recs[1].Name)

	var total uint16
	for _, r := range recs {
		total += r.RecLen
	}
	assert.EqualValues(t, testBlockSize, total)
}

func TestParseDirectoryBlockRoundTrip(t *testing.T) {
	recs := BootstrapRecords(2, 2, testBlockSize, 9)
	buf := EncodeBlock(recs, testBlockSize)

	parsed, err := ParseDirectoryBlock(buf, 9, testBlockSize)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, ".", parsed[0].Name)
	assert.Equal(t, "..", parsed[1].Name)
	assert.Equal(t, InodeTypeDirectory, parsed[0].Type())
}

func newTestDirectory(t *testing.T, block BlockNum) *Directory {
	t.Helper()
	recs := BootstrapRecords(2, 2, testBlockSize, block)
	buf := EncodeBlock(recs, testBlockSize)

	dir, err := NewDirectory(2, testBlockSize, map[BlockNum][]byte{block: buf}, []BlockNum{block})
	require.NoError(t, err)
	return dir
}

func TestPlanAppendShrinksLastRecordWhenRoom(t *testing.T) {
	dir := newTestDirectory(t, 9)

	plan, err := dir.PlanAppend("hello.txt", 12, inodeTypeToDirEntryFileType(InodeTypeFile))
	require.NoError(t, err)
	assert.False(t, plan.NeedsNewBlock)
	assert.EqualValues(t, paddedRecLen(2), plan.ShrunkLast.RecLen, "'..' record must shrink to its padded size")
	assert.Equal(t, "hello.txt", plan.Record.Name)
	assert.EqualValues(t, testBlockSize, plan.ShrunkLast.OffsetInBlock+uint32(plan.ShrunkLast.RecLen)+uint32(plan.Record.RecLen))

	dir.Commit(plan)
	_, ok := dir.Lookup("hello.txt")
	assert.True(t, ok)
}

func TestPlanAppendRejectsDuplicateName(t *testing.T) {
	dir := newTestDirectory(t, 9)
	_, err := dir.PlanAppend(".", 99, inodeTypeToDirEntryFileType(InodeTypeFile))
	assert.Error(t, err)
}

func TestPlanAppendNeedsNewBlockWhenFull(t *testing.T) {
	dir := newTestDirectory(t, 9)

	// Fill the remaining tail of the block with one big name so a second
	// append has no room left: after ".." shrinks to 12 bytes at offset 12,
	// the filler record starts at offset 24 and must consume exactly the
	// rest of the block.
	fillerNameLen := int(testBlockSize) - 24 - DirEntryHeaderSize
	filler := make([]byte, fillerNameLen)
	for i := range filler {
		filler[i] = 'a'
	}
	plan, err := dir.PlanAppend(string(filler), 3, inodeTypeToDirEntryFileType(InodeTypeFile))
	require.NoError(t, err)
	dir.Commit(plan)

	plan2, err := dir.PlanAppend("overflow", 4, inodeTypeToDirEntryFileType(InodeTypeFile))
	require.NoError(t, err)
	assert.True(t, plan2.NeedsNewBlock)
}
