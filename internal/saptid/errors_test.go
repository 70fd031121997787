package saptid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsKind(t *testing.T) {
	err := Newf(KindNotFound, "surface %q unknown", "dog")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrCorruption)
}

func TestErrorWithDetail(t *testing.T) {
	err := Newf(KindCorruption, "bad magic").WithDetail("path", "x.trk")
	assert.Equal(t, "x.trk", err.Details["path"])
}

func TestErrorWrapUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindIoFailure, cause, "fsync failed")
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrIoFailure)
}

func TestInvariantPanics(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		e, ok := r.(*Error)
		require.True(t, ok)
		assert.Equal(t, KindInvariantViolation, e.Kind)
	}()
	Invariant(1 == 2, "impossible")
}

func TestInvariantHoldsIsSilent(t *testing.T) {
	assert.NotPanics(t, func() { Invariant(true, "fine") })
}
