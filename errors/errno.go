// Package errors' sentinel error kinds, one per failure mode named in
// SPEC_FULL.md §7. Each is a distinct constant of the string-backed
// Ext2Error type, so comparisons with errors.Is work without allocating,
// matching the style of the teacher repo's errno shim.
package errors

import "fmt"

// Ext2Error is a sentinel error kind for the ext2 engine.
type Ext2Error string

const ErrBadImage = Ext2Error("disk image is missing, unreadable, or truncated")
const ErrBadMagic = Ext2Error("superblock magic does not match ext2 (0xEF53)")
const ErrMissingFeature = Ext2Error("required feature flag not supported")
const ErrNotFound = Ext2Error("no such file or directory")
const ErrNotADirectory = Ext2Error("not a directory")
const ErrNotAFile = Ext2Error("not a regular file")
const ErrExists = Ext2Error("entry already exists")
const ErrNoSpace = Ext2Error("no space left on device")
const ErrNoContiguousSpace = Ext2Error("no contiguous run of blocks available")
const ErrInodeFull = Ext2Error("inode block pointer tree is full")
const ErrDirectoryNotEmpty = Ext2Error("directory not empty")
const ErrInvalidArgument = Ext2Error("invalid argument")

func (e Ext2Error) Error() string {
	return string(e)
}

func (e Ext2Error) Unwrap() error {
	return nil
}

func (e Ext2Error) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), message),
		originalError: e,
	}
}

func (e Ext2Error) WrapError(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: fmt.Errorf("%w: %w", e, err),
	}
}

// MissingFeature builds the MissingFeature(name) error kind from spec.md §7:
// a required feature bit is set that the engine doesn't implement, or a
// feature the engine requires is clear.
func MissingFeature(name string) DriverError {
	return ErrMissingFeature.WithMessage(fmt.Sprintf("feature %q", name))
}
