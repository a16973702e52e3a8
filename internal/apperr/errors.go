// Package apperr defines the pipeline failure taxonomy and the structured
// channel through which failures are reported.
//
// Per-unit failures (recognition of one region, attribution of one line,
// synthesis of one unit) are reported and absorbed by the caller. Only
// backend initialization failures are returned to callers as errors.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindDetectionEmpty means no regions were found. Not an error.
	KindDetectionEmpty Kind = "DETECTION_EMPTY"
	// KindRecognitionFailure means text recognition failed for a region.
	KindRecognitionFailure Kind = "RECOGNITION_FAILURE"
	// KindAttributionAmbiguous means a speaker could not be determined.
	KindAttributionAmbiguous Kind = "ATTRIBUTION_AMBIGUOUS"
	// KindSynthesisFailure means playback of one unit failed.
	KindSynthesisFailure Kind = "SYNTHESIS_FAILURE"
	// KindBackendInitFailure means a recognition or synthesis backend did not
	// come up within its timeout. Fatal for the current invocation.
	KindBackendInitFailure Kind = "BACKEND_INIT_FAILURE"
	// KindInvalidInput means the caller supplied unusable input.
	KindInvalidInput Kind = "INVALID_INPUT"
	// KindNotFound means a requested session, user or clip does not exist.
	KindNotFound Kind = "NOT_FOUND"
)

// Fatal reports whether failures of this kind abort the current invocation.
func (k Kind) Fatal() bool {
	return k == KindBackendInitFailure || k == KindInvalidInput || k == KindNotFound
}

// Error is the structured error carried through the pipeline.
type Error struct {
	Kind    Kind           `json:"kind"`
	Op      string         `json:"op"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Op)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (cause: %v)", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// WithDetail sets a single detail and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// RecognitionFailed reports a failed recognition call for one region.
func RecognitionFailed(regionID string, cause error) *Error {
	return Wrap(KindRecognitionFailure, "recognize", cause).WithDetail("region_id", regionID)
}

// SynthesisFailed reports a failed synthesis of one unit.
func SynthesisFailed(index int, cause error) *Error {
	return Wrap(KindSynthesisFailure, "synthesize", cause).WithDetail("index", index)
}

// BackendInitFailed reports a backend that did not initialize in time.
func BackendInitFailed(backend, provider string, cause error) *Error {
	return Wrap(KindBackendInitFailure, "init "+backend, cause).
		WithDetail("backend", backend).
		WithDetail("provider", provider)
}

// AttributionAmbiguous reports a unit labeled Unknown.
func AttributionAmbiguous(index int) *Error {
	return New(KindAttributionAmbiguous, "attribute", "speaker could not be determined").WithDetail("index", index)
}

// DetectionEmpty reports a detection pass without regions.
func DetectionEmpty(width, height int) *Error {
	return New(KindDetectionEmpty, "detect", "no bubble regions found").
		WithDetail("width", width).
		WithDetail("height", height)
}

// KindOf extracts the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
