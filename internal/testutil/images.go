// Package testutil loads a compressed ext2 disk image into an in-memory
// stream for tests. The ext2 package's own tests build their images in
// memory and do not import it.
package testutil

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/ext2fs/utilities/compression"
)

// LoadImage takes an RLE8+gzip compressed ext2 disk image and returns a
// stream to access the uncompressed data. Writes to the stream don't affect
// compressedImageBytes, and the stream's size is fixed to its uncompressed
// length.
func LoadImage(t *testing.T, compressedImageBytes []byte, expectedSize int) io.ReadWriteSeeker {
	t.Helper()

	compressedBuf := bytes.NewBuffer(compressedImageBytes)
	require.Greater(t, len(compressedImageBytes), 0, "compressed image is empty")

	imageBytes, err := compression.DecompressImageToBytes(compressedBuf)
	require.NoError(t, err)
	require.Equal(t, expectedSize, len(imageBytes), "uncompressed image is wrong size")

	return bytesextra.NewReadWriteSeeker(imageBytes)
}
