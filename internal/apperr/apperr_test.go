package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		tag  string
	}{
		{name: "nil", err: nil, code: http.StatusOK, tag: ""},
		{name: "invalid input", err: InvalidInput("email is required"), code: http.StatusBadRequest, tag: "INVALID_INPUT"},
		{name: "invalid format", err: fmt.Errorf("%w: bad payload", ErrInvalidFormat), code: http.StatusBadRequest, tag: "INVALID_FORMAT"},
		{name: "not found", err: NotFound("domain %q", "rust"), code: http.StatusNotFound, tag: "NOT_FOUND"},
		{name: "invalid domain", err: fmt.Errorf("load: %w", ErrInvalidDomain), code: http.StatusUnprocessableEntity, tag: "INVALID_DOMAIN"},
		{name: "store failure", err: Store("advance", errors.New("connection refused")), code: http.StatusInternalServerError, tag: "STORE_FAILURE"},
		{name: "unknown", err: errors.New("boom"), code: http.StatusInternalServerError, tag: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, StatusCode(tt.err))
			assert.Equal(t, tt.tag, Code(tt.err))
		})
	}
}

func TestWrappersKeepCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")

	err := Store("append result", cause)
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.ErrorIs(t, err, cause)

	err = Upstream("gemini", cause)
	assert.ErrorIs(t, err, ErrUpstreamFailure)
	assert.ErrorIs(t, err, cause)

	assert.ErrorIs(t, Upstream("empty response", nil), ErrUpstreamFailure)
}
