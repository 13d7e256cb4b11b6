package ext2

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"
)

// ErrShortRead builds a descriptive error for a buffer that's too small to
// hold a fixed-size on-disk record.
func ErrShortRead(what string, want, got int) error {
	return fmt.Errorf("%s: need %d bytes, got %d", what, want, got)
}

// encodeBinary little-endian encodes a fixed-size struct into a freshly
// allocated byte slice using bytewriter, mirroring how the teacher's
// file_systems/unixv1/format.go builds on-disk records.
func encodeBinary(v any) []byte {
	size := binary.Size(v)
	buf := make([]byte, size)
	w := bytewriter.New(buf)
	if err := binary.Write(w, binary.LittleEndian, v); err != nil {
		// binary.Write can only fail here if v's size was computed wrong,
		// which would be a bug in this package, not a runtime condition.
		panic(fmt.Sprintf("encodeBinary: %s", err))
	}
	return buf
}

// decodeBinary little-endian decodes a fixed-size struct from the head of
// data.
func decodeBinary(data []byte, v any) error {
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, v)
}
