// Package compression stores this repository's ext2 test fixture images in
// compressed form, via [cmd/fixturetool] on the way in and
// internal/testutil/images.go on the way out.
//
// An ext2 image is broken into fixed-size blocks, and the emptier it is, the
// more blocks consist entirely of null bytes. A freshly built fixture image
// of a few MiB is mostly dead space the repository doesn't need to store
// byte-for-byte. The best compression in practice comes from run-length
// encoding the raw image first, then gzipping the result: an otherwise-empty
// 1MiB fixture run-length-encodes to little more than 1% of its size before
// gzip even sees it.
//
// There are a variety of run-length encodings; this document refers strictly to
// the algorithm used by the Microsoft BMP file format, also known as RLE8. A
// brief explanation: if a byte B occurs N times where N >= 2, B is written twice,
// followed by a third (unsigned) byte indicating how many additional times B
// occurred. For example:
//
// 		WXXXXXXXXXXXXXXXYZZ
//		W XX 13 Y ZZ 0
//
// This scheme lets us represent runs of up to 257 bytes with three bytes. For
// runs longer than 257 bytes, they are treated as separate runs. For example,
// a run of 300 "X" is represented as `XX 255 XX 41`. Unfortunately, using a byte
// as its own escape sequence means that occurrences of the same byte exactly
// twice are stored as three bytes: the two bytes followed by a null byte
// indicating no further repetition.

package compression
