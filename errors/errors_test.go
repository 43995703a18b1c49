package errors

import (
	baseErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestNew(t *testing.T) {
	err := New("something broke")
	assert.Equal(t, "something broke", err.Error())
	assert.Equal(t, codes.Unknown, err.Code())
	assert.NotEmpty(t, err.StackFrames())
}

func TestNewC(t *testing.T) {
	err := NewC("nope", codes.Unauthenticated)
	assert.Equal(t, codes.Unauthenticated, err.Code())
	assert.Equal(t, http.StatusUnauthorized, err.HTTPStatusCode())
}

func TestNewR(t *testing.T) {
	err := NewR("bad signature", codes.Unauthenticated, "INVALID_SIGNATURE")
	assert.Equal(t, "INVALID_SIGNATURE", err.Reason())
	assert.Equal(t, "INVALID_SIGNATURE", Reason(err))
	assert.Equal(t, "", Reason(baseErrors.New("plain")))
}

func TestWrapPreservesExisting(t *testing.T) {
	inner := NewC("inner", codes.NotFound)
	outer := Wrap(inner, 0)
	assert.Same(t, inner, outer)
}

func TestMarkPreservesMetadata(t *testing.T) {
	sentinel := NewR("channel expired", codes.InvalidArgument, "CHANNEL_EXPIRED")
	marked := Mark(sentinel, 0)
	assert.NotSame(t, sentinel, marked)
	assert.Equal(t, sentinel.Code(), marked.Code())
	assert.Equal(t, sentinel.Reason(), marked.Reason())
	assert.True(t, Is(marked, sentinel.Err))
}

func TestIsMatchesMarkedSentinel(t *testing.T) {
	sentinel := NewR("channel expired", codes.InvalidArgument, "CHANNEL_EXPIRED")
	assert.True(t, Is(Mark(sentinel, 0), sentinel))
	assert.True(t, Is(fmt.Errorf("poll: %w", Mark(sentinel, 0)), sentinel))
	assert.True(t, Is(Mark(sentinel, 0).Append("channel abc123"), sentinel))

	other := NewR("bad signature", codes.Unauthenticated, "INVALID_SIGNATURE")
	assert.False(t, Is(Mark(other, 0), sentinel))
	assert.False(t, Is(New("unrelated"), sentinel))
}

func TestAppend(t *testing.T) {
	err := New("base").Append("detail one").Append("detail two")
	assert.Equal(t, "base: detail one: detail two", err.Error())
}

func TestIsThroughWrapping(t *testing.T) {
	sentinel := baseErrors.New("sentinel")
	err := Wrap(fmt.Errorf("outer: %w", sentinel), 0)
	assert.True(t, Is(err, sentinel))
}

func TestPublicMessage(t *testing.T) {
	err := New("sql syntax error near SELECT").WithPublicMessage("internal error")
	assert.Equal(t, "internal error", err.PublicMessage())
	assert.Equal(t, "sql syntax error near SELECT", err.Error())
}

func TestHTTPStatusCodes(t *testing.T) {
	tests := []struct {
		code codes.Code
		want int
	}{
		{codes.InvalidArgument, http.StatusBadRequest},
		{codes.NotFound, http.StatusNotFound},
		{codes.AlreadyExists, http.StatusConflict},
		{codes.Unauthenticated, http.StatusUnauthorized},
		{codes.ResourceExhausted, http.StatusTooManyRequests},
		{codes.Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewC("x", tt.code).HTTPStatusCode(), tt.code.String())
	}
}

func TestHTTPStatusCodeOverride(t *testing.T) {
	err := NewC("gone", codes.InvalidArgument).WithHTTPStatusCode(http.StatusGone)
	assert.Equal(t, http.StatusGone, err.HTTPStatusCode())
}

func TestCodeHelpers(t *testing.T) {
	assert.Equal(t, codes.OK, Code(nil))
	assert.Equal(t, http.StatusOK, HTTPStatusCode(nil))
	assert.Equal(t, codes.Unknown, Code(baseErrors.New("plain")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusCode(baseErrors.New("plain")))
}

func TestErrorStack(t *testing.T) {
	err := New("traced")
	stack := err.ErrorStack()
	require.Contains(t, stack, "traced")
	require.Contains(t, stack, "errors_test.go")

	// The first recorded frame is the call site, not this package.
	frames := err.StackFrames()
	require.NotEmpty(t, frames)
	assert.Contains(t, frames[0].File, "errors_test.go")
}

func TestWrapStackStartsAtCaller(t *testing.T) {
	err := Wrap(baseErrors.New("plain"), 0)
	frames := err.StackFrames()
	require.NotEmpty(t, frames)
	assert.Contains(t, frames[0].File, "errors_test.go")
}

func TestMarkStackStartsAtCaller(t *testing.T) {
	sentinel := NewR("gone", codes.NotFound, "RECORD_GONE")
	frames := Mark(sentinel, 0).StackFrames()
	require.NotEmpty(t, frames)
	assert.Contains(t, frames[0].File, "errors_test.go")
}
