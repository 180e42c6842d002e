package pipeline

import "errors"

// Kind classifies pipeline failures for the transport layer.
type Kind int

const (
	KindInvalidInput Kind = iota + 1
	KindFetchFailed
	KindParseFailed
	KindTooShort
	KindArtifactLoad
	KindInternal
)

var kindNames = map[Kind]string{
	KindInvalidInput: "invalid_input",
	KindFetchFailed:  "fetch_failed",
	KindParseFailed:  "parse_failed",
	KindTooShort:     "too_short",
	KindArtifactLoad: "not_ready",
	KindInternal:     "internal",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Sentinels for errors.Is; every *Error matches the one for its Kind.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrFetchFailed  = errors.New("fetch failed")
	ErrParseFailed  = errors.New("parse failed")
	ErrTooShort     = errors.New("text too short")
	ErrArtifactLoad = errors.New("artifacts not loaded")
	ErrInternal     = errors.New("internal invariant violated")
)

var sentinels = map[Kind]error{
	KindInvalidInput: ErrInvalidInput,
	KindFetchFailed:  ErrFetchFailed,
	KindParseFailed:  ErrParseFailed,
	KindTooShort:     ErrTooShort,
	KindArtifactLoad: ErrArtifactLoad,
	KindInternal:     ErrInternal,
}

// Error is the only error type Predict returns. Message is safe to show to
// callers; Err keeps the originating stage error.
type Error struct {
	Kind Kind
	// Stage is the last stage completed before the failure.
	Stage   Stage
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
