package custom_errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Empty(t *testing.T) {
	v := &ValidationError{}
	assert.False(t, v.HasError())
	assert.Equal(t, "", v.Error())
}

func TestValidationError_Aggregates(t *testing.T) {
	v := &ValidationError{}
	v.Add(errors.New("first"))
	v.Add(errors.New("second"))

	assert.True(t, v.HasError())
	assert.Contains(t, v.Error(), "first")
	assert.Contains(t, v.Error(), "second")
}

func TestApplicationError_Unwrap(t *testing.T) {
	cause := errors.New("bad payload")
	err := NewApplicationError("decode", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsApplicationError(err))
	assert.Equal(t, "decode: bad payload", err.Error())
	assert.False(t, IsApplicationError(cause))
}

func TestValidationError_ErrAndUnwrap(t *testing.T) {
	v := &ValidationError{}
	v.Add(nil)
	assert.NoError(t, v.Err())

	v.Add(ErrScopeMismatch)
	v.Addf("worker count %d", 0)
	err := v.Err()
	assert.ErrorIs(t, err, ErrScopeMismatch)
	assert.True(t, IsValidationError(err))
	assert.Equal(t, ErrScopeMismatch.Error()+"; worker count 0", err.Error())
}
