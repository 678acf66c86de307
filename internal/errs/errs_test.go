package errs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := E(KindDecode, io.ErrUnexpectedEOF)
	assert.Equal(t, KindDecode, KindOf(err))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	wrapped := fmt.Errorf("import: %w", err)
	assert.Equal(t, KindDecode, KindOf(wrapped))

	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestOffset(t *testing.T) {
	err := At(KindDecode, 1234, errors.New("bad frame"))
	var e *Error
	require.True(t, errors.As(err, &e))
	off, ok := e.Offset()
	assert.True(t, ok)
	assert.EqualValues(t, 1234, off)
	assert.Contains(t, err.Error(), "offset 1234")
	assert.Contains(t, err.Error(), "decode")
}

func TestNilPassthrough(t *testing.T) {
	assert.NoError(t, E(KindIO, nil))
	assert.NoError(t, At(KindIO, 5, nil))
}
