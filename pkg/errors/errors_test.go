package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeData, "nothing"))
}

func TestWrapPreservesStack(t *testing.T) {
	inner := New(ErrorTypeConnection, "reset")
	outer := Wrap(inner, ErrorTypeExtraction, "contacts")

	require.NotNil(t, outer)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, stderrors.Is(outer, inner))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", New(ErrorTypeRateLimit, "429"), true},
		{"timeout", New(ErrorTypeTimeout, "deadline"), true},
		{"connection", New(ErrorTypeConnection, "reset"), true},
		{"upstream", New(ErrorTypeUpstream, "500"), false},
		{"quota", New(ErrorTypeQuotaExhausted, "daily"), false},
		{"plain", fmt.Errorf("plain"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatalThroughChain(t *testing.T) {
	quota := New(ErrorTypeQuotaExhausted, "daily")
	wrapped := fmt.Errorf("page 3: %w", Wrap(quota, ErrorTypeExtraction, "opportunities"))

	assert.True(t, IsFatal(wrapped))
	assert.True(t, IsType(wrapped, ErrorTypeExtraction))
	assert.False(t, IsFatal(New(ErrorTypeUpstream, "404")))
	assert.Equal(t, ErrorTypeExtraction, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeInternal, TypeOf(fmt.Errorf("plain")))
}

func TestDetailSearchesCause(t *testing.T) {
	inner := New(ErrorTypeUpstream, "bad status").WithDetail("status", 503)
	outer := Wrap(inner, ErrorTypeExtraction, "users").WithDetail("domain", "users")

	v, ok := outer.Detail("status")
	require.True(t, ok)
	assert.Equal(t, 503, v)

	v, ok = outer.Detail("domain")
	require.True(t, ok)
	assert.Equal(t, "users", v)

	_, ok = outer.Detail("missing")
	assert.False(t, ok)
}

func TestStatusCode(t *testing.T) {
	inner := New(ErrorTypeUpstream, "not found").WithDetail("status", 404)
	outer := fmt.Errorf("contacts: %w", Wrap(inner, ErrorTypeExtraction, "extract"))

	assert.Equal(t, 404, StatusCode(outer))
	assert.Equal(t, 0, StatusCode(New(ErrorTypeData, "bad json")))
	assert.Equal(t, 0, StatusCode(nil))
}
