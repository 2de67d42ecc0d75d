// Package apperr defines the error taxonomy shared by the pipeline stages and
// the request layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure. The string value is the machine code exposed
// over the API.
type Kind string

const (
	KindValidation Kind = "VALIDATION_ERROR"
	KindExtraction Kind = "EXTRACTION_FAILED"
	KindDownload   Kind = "DOWNLOAD_FAILED"
	KindUpload     Kind = "UPLOAD_FAILED"
	KindNotFound   Kind = "JOB_NOT_FOUND"
	KindAuth       Kind = "AUTH_REQUIRED"
	KindRateLimit  Kind = "RATE_LIMIT"
	KindInternal   Kind = "INTERNAL_ERROR"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrExtractionFailed = &Error{Kind: KindExtraction}
	ErrDownloadFailed   = &Error{Kind: KindDownload}
	ErrUploadFailed     = &Error{Kind: KindUpload}
	ErrJobNotFound      = &Error{Kind: KindNotFound}
	ErrAuthRequired     = &Error{Kind: KindAuth}
	ErrRateLimited      = &Error{Kind: KindRateLimit}
)

// Detail is one failed alternative of an aggregate failure, e.g. a single
// extraction strategy or a single storage backend.
type Detail struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// Error is a classified pipeline failure.
type Error struct {
	Kind    Kind
	Message string
	Details []Detail
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Message == "" {
		b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " ")))
	}
	if e.Err != nil && len(e.Details) == 0 {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	for _, d := range e.Details {
		fmt.Fprintf(&b, "\n  - %s: %s", d.Source, d.Message)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when target carries no message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message != "" {
		return t == e
	}
	return t.Kind == e.Kind
}

// New creates a classified error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Aggregate builds a failure that lists every attempted alternative.
func Aggregate(kind Kind, message string, details []Detail) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Validation is shorthand for New(KindValidation, ...).
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DetailsOf returns the per-alternative details of the first *Error in
// err's chain.
func DetailsOf(err error) []Detail {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// Retryable reports whether a new attempt could plausibly succeed.
// Validation and not-found failures are permanent.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindAuth:
		return false
	default:
		return true
	}
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindExtraction:
		return http.StatusUnprocessableEntity
	case KindDownload, KindUpload:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusUnauthorized
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
