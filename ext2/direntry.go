package ext2

import (
	"encoding/binary"

	ext2errors "github.com/dargueta/ext2fs/errors"
)

// DirEntryHeaderSize is the fixed portion of a directory record, before the
// variable-length name.
const DirEntryHeaderSize = 8

// DirectoryRecord is one decoded on-disk directory entry.
type DirectoryRecord struct {
	Inode    InodeNum
	RecLen   uint16
	NameLen  uint8
	FileType uint8
	Name     string

	// OffsetInBlock and ContainingBlock let the Directory that owns this
	// record rewrite it in place without re-parsing the whole block.
	OffsetInBlock uint32
	ContainingBlock BlockNum
}

// Type returns the InodeType this record's on-disk fileType byte encodes.
func (r DirectoryRecord) Type() InodeType {
	return dirEntryFileTypeToInodeType(r.FileType)
}

// decodeDirectoryRecord decodes one record from buf at offset, returning the
// record and the number of bytes consumed (its recLen).
func decodeDirectoryRecord(buf []byte, offset uint32) (DirectoryRecord, error) {
	if int(offset)+DirEntryHeaderSize > len(buf) {
		return DirectoryRecord{}, ErrShortRead("directory record header", DirEntryHeaderSize, len(buf)-int(offset))
	}

	inode := binary.LittleEndian.Uint32(buf[offset : offset+4])
	recLen := binary.LittleEndian.Uint16(buf[offset+4 : offset+6])
	nameLen := buf[offset+6]
	fileType := buf[offset+7]

	nameStart := offset + DirEntryHeaderSize
	nameEnd := nameStart + uint32(nameLen)
	if int(nameEnd) > len(buf) {
		return DirectoryRecord{}, ErrShortRead("directory record name", int(nameLen), len(buf)-int(nameStart))
	}

	return DirectoryRecord{
		Inode:         InodeNum(inode),
		RecLen:        recLen,
		NameLen:       nameLen,
		FileType:      fileType,
		Name:          string(buf[nameStart:nameEnd]),
		OffsetInBlock: offset,
	}, nil
}

// encodeDirectoryRecordInto writes r's header and name into buf at
// r.OffsetInBlock, using r.RecLen as the padded record length.
func encodeDirectoryRecordInto(buf []byte, r DirectoryRecord) {
	o := r.OffsetInBlock
	binary.LittleEndian.PutUint32(buf[o:o+4], uint32(r.Inode))
	binary.LittleEndian.PutUint16(buf[o+4:o+6], r.RecLen)
	buf[o+6] = uint8(len(r.Name))
	buf[o+7] = r.FileType
	copy(buf[o+8:o+8+uint32(len(r.Name))], r.Name)
}

// paddedRecLen returns the 4-byte-aligned record length a name of the given
// length needs, per spec.md §4.7's addEntry formula.
func paddedRecLen(nameLen int) uint16 {
	return uint16(ceilDiv(uint32(DirEntryHeaderSize+nameLen), 4) * 4)
}

// Directory is the in-memory view of a directory's entries, built by
// parsing every data block attached to its inode.
type Directory struct {
	SelfInode InodeNum
	BlockSize uint32
	Entries   map[string]DirectoryRecord

	// last is the last-seen record of the last parsed block, used by
	// PlanAppend to try the in-place-growth path before falling back to
	// allocating a fresh block.
	last DirectoryRecord
}

// ParseDirectoryBlock decodes every record in a single blockSize-long block,
// advancing the cursor by each record's recLen until it reaches blockSize,
// per spec.md §4.7.
func ParseDirectoryBlock(buf []byte, containingBlock BlockNum, blockSize uint32) ([]DirectoryRecord, error) {
	var records []DirectoryRecord
	offset := uint32(0)

	for offset < blockSize {
		rec, err := decodeDirectoryRecord(buf, offset)
		if err != nil {
			return nil, err
		}
		rec.ContainingBlock = containingBlock
		records = append(records, rec)

		if rec.RecLen == 0 {
			break
		}
		offset += uint32(rec.RecLen)
	}
	return records, nil
}

// NewDirectory parses every block in blocks (already materialized via
// BlockGraph.Walk) into a Directory keyed by entry name.
func NewDirectory(self InodeNum, blockSize uint32, blockBufs map[BlockNum][]byte, blockOrder []BlockNum) (*Directory, error) {
	dir := &Directory{SelfInode: self, BlockSize: blockSize, Entries: map[string]DirectoryRecord{}}

	for _, blk := range blockOrder {
		records, err := ParseDirectoryBlock(blockBufs[blk], blk, blockSize)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if rec.Inode != 0 {
				dir.Entries[rec.Name] = rec
			}
			dir.last = rec
		}
	}
	return dir, nil
}

// Lookup returns the record for name, and whether it exists.
func (d *Directory) Lookup(name string) (DirectoryRecord, bool) {
	rec, ok := d.Entries[name]
	return rec, ok
}

// AppendPlan is PlanAppend's description of how to add a new (name, inode,
// fileType) entry without mutating the directory: the record to write, the
// shrunk predecessor record, and, when the growth doesn't fit in the last
// known block, an indication that a fresh block must be allocated and
// attached first.
type AppendPlan struct {
	Record       DirectoryRecord
	ShrunkLast   DirectoryRecord
	NeedsNewBlock bool
}

// PlanAppend implements the placement half of addEntry from spec.md §4.7;
// it does not perform I/O or inode allocation, only the record-layout
// arithmetic, so callers can retry/rollback around the I/O.
func (d *Directory) PlanAppend(name string, inode InodeNum, fileType uint8) (AppendPlan, error) {
	if _, exists := d.Entries[name]; exists {
		return AppendPlan{}, ext2errors.ErrExists
	}

	currSize := paddedRecLen(len(name))

	if d.last.RecLen != 0 {
		lastSize := paddedRecLen(len(d.last.Name))
		if uint32(d.last.OffsetInBlock)+uint32(lastSize)+uint32(currSize) <= d.BlockSize {
			shrunk := d.last
			shrunk.RecLen = lastSize

			newOffset := d.last.OffsetInBlock + uint32(lastSize)
			rec := DirectoryRecord{
				Inode:           inode,
				RecLen:          uint16(d.BlockSize) - uint16(newOffset),
				NameLen:         uint8(len(name)),
				FileType:        fileType,
				Name:            name,
				OffsetInBlock:   newOffset,
				ContainingBlock: d.last.ContainingBlock,
			}
			return AppendPlan{Record: rec, ShrunkLast: shrunk}, nil
		}
	}

	rec := DirectoryRecord{
		Inode:         inode,
		RecLen:        uint16(d.BlockSize),
		NameLen:       uint8(len(name)),
		FileType:      fileType,
		Name:          name,
		OffsetInBlock: 0,
	}
	return AppendPlan{Record: rec, NeedsNewBlock: true}, nil
}

// Commit records a successfully-written append in the in-memory map and
// advances the last-record pointer.
func (d *Directory) Commit(plan AppendPlan) {
	if plan.ShrunkLast.RecLen != 0 {
		d.Entries[plan.ShrunkLast.Name] = plan.ShrunkLast
	}
	d.Entries[plan.Record.Name] = plan.Record
	d.last = plan.Record
}

// BootstrapRecords returns the `.` and `..` records a freshly created
// directory's first block must contain, per spec.md §3/§4.7.
func BootstrapRecords(self, parent InodeNum, blockSize uint32, block BlockNum) []DirectoryRecord {
	dot := DirectoryRecord{
		Inode: self, RecLen: 12, NameLen: 1,
		FileType: inodeTypeToDirEntryFileType(InodeTypeDirectory), Name: ".",
		OffsetInBlock: 0, ContainingBlock: block,
	}
	dotdot := DirectoryRecord{
		Inode: parent, RecLen: uint16(blockSize) - 12, NameLen: 2,
		FileType: inodeTypeToDirEntryFileType(InodeTypeDirectory), Name: "..",
		OffsetInBlock: 12, ContainingBlock: block,
	}
	return []DirectoryRecord{dot, dotdot}
}

// EncodeBlock renders a full blockSize buffer from the given records, which
// must already satisfy sum(recLen) == blockSize.
func EncodeBlock(records []DirectoryRecord, blockSize uint32) []byte {
	buf := make([]byte, blockSize)
	for _, rec := range records {
		encodeDirectoryRecordInto(buf, rec)
	}
	return buf
}
