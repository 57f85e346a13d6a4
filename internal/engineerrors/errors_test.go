package engineerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInputError(t *testing.T) {
	err := NewInputError("UnknownSnapshot", "abc123")
	assert.Contains(t, err.Error(), "UnknownSnapshot")
	assert.Contains(t, err.Error(), "abc123")

	var ie *InputError
	assert.True(t, errors.As(err, &ie))
}

func TestIgnoreError(t *testing.T) {
	err := NewIgnoreError([]string{"a.go", "b.go"})
	assert.Contains(t, err.Error(), "2")
}

func TestDiffErrorWithLine(t *testing.T) {
	err := NewDiffError("MalformedHeader", 12, "missing +++ line")
	assert.Contains(t, err.Error(), "line 12")
}

func TestUnknownDriftError(t *testing.T) {
	err := NewUnknownDriftError([]string{"x.go"})
	assert.Contains(t, err.Error(), "x.go")
}

func TestIOErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := NewIOError("write", "/tmp/foo", cause)

	assert.Contains(t, err.Error(), "write")
	assert.ErrorIs(t, err, cause)
}

func TestIntegrityError(t *testing.T) {
	err := NewIntegrityError("ChainMismatch", "snapshot abc points at wrong parent")
	assert.Contains(t, err.Error(), "ChainMismatch")
}
