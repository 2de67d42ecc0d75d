package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := New(KindDownload, "server returned %d", 500)
	wrapped := fmt.Errorf("job abc: %w", err)

	assert.ErrorIs(t, wrapped, ErrDownloadFailed)
	assert.NotErrorIs(t, wrapped, ErrUploadFailed)
	assert.Equal(t, KindDownload, KindOf(wrapped))
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindUpload, cause, "gofile upload")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.Equal(t, "gofile upload: connection reset", err.Error())
}

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, Wrap(KindUpload, nil, "noop"))
}

func TestAggregate_ListsEveryAlternative(t *testing.T) {
	err := Aggregate(KindExtraction, "no media found, all strategies failed", []Detail{
		{Source: "tool", Message: "exit status 1"},
		{Source: "direct", Message: "no media found"},
	})

	assert.Equal(t, "no media found, all strategies failed\n  - tool: exit status 1\n  - direct: no media found", err.Error())
	assert.Len(t, DetailsOf(fmt.Errorf("wrapped: %w", err)), 2)
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(Validation("bad url")))
	assert.False(t, Retryable(New(KindNotFound, "missing")))
	assert.True(t, Retryable(New(KindDownload, "timeout")))
	assert.True(t, Retryable(errors.New("unclassified")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindExtraction, http.StatusUnprocessableEntity},
		{KindDownload, http.StatusBadGateway},
		{KindUpload, http.StatusBadGateway},
		{KindNotFound, http.StatusNotFound},
		{KindAuth, http.StatusUnauthorized},
		{KindRateLimit, http.StatusTooManyRequests},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}
