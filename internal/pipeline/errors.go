package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorType represents the class of a terminal job error
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeMissingManifestURL
	ErrorTypeManifestUnreachable
	ErrorTypeMalformedPlaylist
	ErrorTypeNoVariantsFound
	ErrorTypeSegmentFetchFailed
	ErrorTypeAssemblyFailed
	ErrorTypeCanceled
)

// Sentinels for errors.Is comparisons against a *PipelineError of the same type.
var (
	ErrMissingManifestURL  = &PipelineError{Type: ErrorTypeMissingManifestURL}
	ErrManifestUnreachable = &PipelineError{Type: ErrorTypeManifestUnreachable}
	ErrMalformedPlaylist   = &PipelineError{Type: ErrorTypeMalformedPlaylist}
	ErrNoVariantsFound     = &PipelineError{Type: ErrorTypeNoVariantsFound}
	ErrSegmentFetchFailed  = &PipelineError{Type: ErrorTypeSegmentFetchFailed}
	ErrAssemblyFailed      = &PipelineError{Type: ErrorTypeAssemblyFailed}
	ErrCanceled            = &PipelineError{Type: ErrorTypeCanceled}
)

// PipelineError represents a pipeline-specific error
type PipelineError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time

	// Index and Status are set for SegmentFetchFailed
	Index  int
	Status int
	URL    string

	// Attempted and Status are set for ManifestUnreachable
	Attempted []string

	Err error
}

// String returns a string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeMissingManifestURL:
		return "MissingManifestUrl"
	case ErrorTypeManifestUnreachable:
		return "ManifestUnreachable"
	case ErrorTypeMalformedPlaylist:
		return "MalformedPlaylist"
	case ErrorTypeNoVariantsFound:
		return "NoVariantsFound"
	case ErrorTypeSegmentFetchFailed:
		return "SegmentFetchFailed"
	case ErrorTypeAssemblyFailed:
		return "AssemblyFailed"
	case ErrorTypeCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	var b strings.Builder
	b.WriteString(e.Type.String())

	switch e.Type {
	case ErrorTypeSegmentFetchFailed:
		fmt.Fprintf(&b, ": segment %d", e.Index)
		if e.Status > 0 {
			fmt.Fprintf(&b, " returned HTTP %d", e.Status)
		}
	case ErrorTypeManifestUnreachable:
		fmt.Fprintf(&b, ": tried %d URL(s)", len(e.Attempted))
		if e.Status > 0 {
			fmt.Fprintf(&b, ", last status HTTP %d", e.Status)
		}
	}

	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a PipelineError of the same type
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// NewPipelineError creates a new pipeline error
func NewPipelineError(errorType ErrorType, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:      errorType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       cause,
	}
}

func malformedPlaylist(line int, format string, args ...interface{}) *PipelineError {
	return NewPipelineError(ErrorTypeMalformedPlaylist,
		fmt.Sprintf("line %d: ", line)+fmt.Sprintf(format, args...), nil)
}

func segmentFetchFailed(index, status int, url string, cause error) *PipelineError {
	e := NewPipelineError(ErrorTypeSegmentFetchFailed, "", cause)
	e.Index = index
	e.Status = status
	e.URL = url
	return e
}

func manifestUnreachable(attempted []string, lastStatus int, cause error) *PipelineError {
	e := NewPipelineError(ErrorTypeManifestUnreachable, "", cause)
	e.Attempted = append([]string(nil), attempted...)
	e.Status = lastStatus
	return e
}

func assemblyFailed(message string, cause error) *PipelineError {
	return NewPipelineError(ErrorTypeAssemblyFailed, message, cause)
}

// canceled converts a context error into a Canceled pipeline error.
func canceled(cause error) *PipelineError {
	return NewPipelineError(ErrorTypeCanceled, "job canceled", cause)
}

// AsPipelineError extracts a *PipelineError from err, classifying context
// cancellation and unknown errors along the way.
func AsPipelineError(err error) *PipelineError {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	if isContextErr(err) {
		return canceled(err)
	}
	return NewPipelineError(ErrorTypeUnknown, "", err)
}

// RetryPolicy bounds per-segment retries. The zero value is fail-fast.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// shouldRetry reports whether a failed segment attempt may be repeated.
// Only transport failures and server errors are transient.
func (rp RetryPolicy) shouldRetry(attempt, status int) bool {
	if attempt >= rp.MaxRetries {
		return false
	}
	return status == 0 || status >= http.StatusInternalServerError
}
