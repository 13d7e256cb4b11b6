// Package ext2 implements a user-space read/write engine for ext2 disk
// images: superblock and group descriptor parsing, bitmap allocation, the
// inode table, the direct/indirect block pointer graph, directory records,
// and path navigation.
package ext2

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// BlockNum is an absolute block number on the image, counted from 0.
type BlockNum uint32

// InodeNum is a 1-based inode number. Inode 2 is always the root directory.
type InodeNum uint32

// BlockDevice is a thin random-access layer over a disk image stream. It
// performs no caching: every read or write is issued directly against the
// backing stream, exactly as spec.md §4.1 requires, so the rest of the
// engine never has to reason about a stale in-memory copy of a block.
type BlockDevice struct {
	stream    io.ReadWriteSeeker
	blockSize uint32
	log       logrus.FieldLogger
}

// NewBlockDevice wraps a seekable stream as a block device with the given
// block size.
func NewBlockDevice(stream io.ReadWriteSeeker, blockSize uint32) *BlockDevice {
	return &BlockDevice{
		stream:    stream,
		blockSize: blockSize,
		log:       logrus.StandardLogger(),
	}
}

// SetLogger overrides the device's logger, used by the Façade to inject a
// caller-provided logrus.FieldLogger.
func (dev *BlockDevice) SetLogger(log logrus.FieldLogger) {
	dev.log = log
}

// BlockSize returns the size, in bytes, of one logical block.
func (dev *BlockDevice) BlockSize() uint32 {
	return dev.blockSize
}

func (dev *BlockDevice) seek(blockNo BlockNum, offset uint32) error {
	pos := int64(blockNo)*int64(dev.blockSize) + int64(offset)
	_, err := dev.stream.Seek(pos, io.SeekStart)
	return err
}

// ReadBlock reads `size` bytes (default: one full block) from `blockNo`
// starting at `offset` bytes into the block, filling `buf`. Any I/O failure
// is fatal and propagated to the caller, per spec.md §4.1.
func (dev *BlockDevice) ReadBlock(blockNo BlockNum, buf []byte, size uint32, offset uint32) error {
	if size == 0 {
		size = dev.blockSize
	}
	if err := dev.seek(blockNo, offset); err != nil {
		return fmt.Errorf("seek to block %d: %w", blockNo, err)
	}

	n, err := io.ReadFull(dev.stream, buf[:size])
	if err != nil {
		return fmt.Errorf("read block %d (%d bytes at +%d): %w", blockNo, size, offset, err)
	}
	dev.log.WithFields(logrus.Fields{"block": blockNo, "bytes": n}).Debug("read block")
	return nil
}

// WriteBlock writes `size` bytes from `buf` to `blockNo` starting at `offset`
// bytes into the block.
func (dev *BlockDevice) WriteBlock(blockNo BlockNum, buf []byte, size uint32, offset uint32) error {
	if size == 0 {
		size = dev.blockSize
	}
	if err := dev.seek(blockNo, offset); err != nil {
		return fmt.Errorf("seek to block %d: %w", blockNo, err)
	}

	n, err := dev.stream.Write(buf[:size])
	if err != nil {
		return fmt.Errorf("write block %d (%d bytes at +%d): %w", blockNo, size, offset, err)
	}
	dev.log.WithFields(logrus.Fields{"block": blockNo, "bytes": n}).Debug("wrote block")
	return nil
}

// ReadNullTerminatedString reads up to maxLen bytes from blockNo starting at
// offset, stopping at the first NUL byte (whichever comes first).
func (dev *BlockDevice) ReadNullTerminatedString(blockNo BlockNum, maxLen uint32, offset uint32) (string, error) {
	buf := make([]byte, maxLen)
	if err := dev.ReadBlock(blockNo, buf, maxLen, offset); err != nil {
		return "", err
	}

	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), nil
		}
	}
	return string(buf), nil
}
