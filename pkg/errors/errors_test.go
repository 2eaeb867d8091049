package errors_test

import (
	"fmt"
	"io"
	"testing"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	t.Run("Is", func(t *testing.T) {
		closed := errors.New(errors.ErrClosed, "connection closed")
		transient := errors.WrapCode(io.ErrUnexpectedEOF, errors.ErrStoreTransient, "commit")

		tests := []struct {
			err    error
			target errors.Code
			exp    bool
		}{
			{err: closed, target: errors.ErrClosed, exp: true},
			{err: closed, target: errors.ErrTransaction, exp: false},
			{err: errors.Wrap(closed, "with message"), target: errors.ErrClosed, exp: true},
			{err: transient, target: errors.ErrStoreTransient, exp: true},
			{err: transient, target: errors.ErrStoreCorruption, exp: false},
			{err: errors.Newf(errors.ErrMalformedInput, "bad %q", "x"), target: errors.ErrMalformedInput, exp: true},
			{err: fmt.Errorf("plain"), target: errors.ErrUncoded, exp: false},
		}

		for i, test := range tests {
			t.Run(fmt.Sprintf("test-%d", i), func(t *testing.T) {
				assert.Equal(t, test.exp, errors.Is(test.err, test.target))
			})
		}
	})

	t.Run("WrapCodeKeepsCause", func(t *testing.T) {
		err := errors.WrapCode(io.ErrUnexpectedEOF, errors.ErrStoreTransient, "commit")
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.Equal(t, "commit: unexpected EOF", err.Error())
		assert.Nil(t, errors.WrapCode(nil, errors.ErrStoreTransient, "commit"))
	})

	t.Run("CodeOf", func(t *testing.T) {
		assert.Equal(t, errors.ErrClosed, errors.CodeOf(errors.Wrap(errors.New(errors.ErrClosed, "x"), "y")))
		assert.Equal(t, errors.ErrStoreCorruption, errors.CodeOf(errors.WrapCode(io.EOF, errors.ErrStoreCorruption, "")))
		assert.Equal(t, errors.ErrUncoded, errors.CodeOf(io.EOF))
	})

	t.Run("IsTransactionError", func(t *testing.T) {
		assert.True(t, errors.IsTransactionError(errors.New(errors.ErrConcurrentModification, "busy")))
		assert.True(t, errors.IsTransactionError(errors.WrapCode(io.EOF, errors.ErrStoreTransient, "")))
		assert.False(t, errors.IsTransactionError(errors.New(errors.ErrMalformedInput, "bad")))
	})
}
