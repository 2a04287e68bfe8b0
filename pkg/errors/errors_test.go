package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		errType  ErrorType
		expected bool
	}{
		{ErrorTypeNetwork, true},
		{ErrorTypeRateLimit, true},
		{ErrorTypeServerError, true},
		{ErrorTypeAuth, false},
		{ErrorTypeNotFound, false},
		{ErrorTypeParsing, false},
		{ErrorTypeInvalidRequest, false},
		{ErrorTypeUnknown, false},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, IsRetryable(test.errType), string(test.errType))
	}
}

func TestNotFoundMatching(t *testing.T) {
	err := fmt.Errorf("lookup: %w", &Error{Type: ErrorTypeNotFound, Status: "ZERO_RESULTS"})
	assert.True(t, stderrors.Is(err, ErrNotFound))
	assert.Equal(t, ErrorTypeNotFound, TypeOf(err))

	other := &Error{Type: ErrorTypeServerError, Code: 500}
	assert.False(t, stderrors.Is(other, ErrNotFound))
	assert.True(t, other.IsTransient())
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorType(""), TypeOf(nil))
	assert.Equal(t, ErrorTypeCancelled, TypeOf(fmt.Errorf("stop: %w", ErrCancelled)))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(stderrors.New("boom")))
}

func TestStructuralErrorMessages(t *testing.T) {
	crs := &CrsMismatchError{NetworkCRS: "EPSG:4326", AreaCRS: "EPSG:3857"}
	assert.Contains(t, crs.Error(), "EPSG:3857")

	empty := &EmptyExtractError{Ways: 12, Area: "[[1 2] [3 4]]"}
	assert.Contains(t, empty.Error(), "12 ways")
}
