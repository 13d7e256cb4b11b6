package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/dargueta/ext2fs/errors"
	"github.com/stretchr/testify/assert"
)

func TestExt2ErrorWithMessage(t *testing.T) {
	newErr := errors.ErrNotFound.WithMessage("/sub/new")
	assert.Equal(
		t,
		"no such file or directory: /sub/new",
		newErr.Error(),
		"error message is wrong",
	)
	assert.ErrorIs(t, newErr, errors.ErrNotFound)
}

func TestExt2ErrorWrapError(t *testing.T) {
	originalErr := stderrors.New("short read")
	newErr := errors.ErrBadImage.WrapError(originalErr)

	assert.Equal(t, "disk image is missing, unreadable, or truncated: short read", newErr.Error())
	assert.ErrorIs(t, newErr, originalErr)
	assert.ErrorIs(t, newErr, errors.ErrBadImage)
}

func TestMissingFeature(t *testing.T) {
	err := errors.MissingFeature("filetype")
	assert.Contains(t, err.Error(), "filetype")
	assert.ErrorIs(t, err, errors.ErrMissingFeature)
}
