package loader

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind rather than matching error strings.
type Kind string

const (
	KindUnrecognizedScheme  Kind = "UnrecognizedScheme"
	KindMalformedIdentifier Kind = "MalformedIdentifier"
	KindUnsupportedCodec    Kind = "UnsupportedCodec"
	KindStoreFetch          Kind = "StoreFetch"
	KindDocumentParse       Kind = "DocumentParse"
)

// Error is the loader's structured error type. Every failed resolution
// returns exactly one *Error.
//
// Message is intended for humans; do not match on it. Cause carries the
// underlying failure (for KindStoreFetch, the store's error unchanged).
type Error struct {
	Kind    Kind
	URI     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := "loader: " + e.Message
	if e.URI != "" {
		msg += " (" + e.URI + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, uri, msg string, cause error) error {
	return &Error{Kind: kind, URI: uri, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the Kind of a loader error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
