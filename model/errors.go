package model

import (
	"context"
	"errors"
	"fmt"

	"xdao.co/docloader/loader"
)

type ErrorCode string

const (
	ErrUnrecognizedScheme  ErrorCode = "UNRECOGNIZED_SCHEME"
	ErrMalformedIdentifier ErrorCode = "MALFORMED_IDENTIFIER"
	ErrUnsupportedCodec    ErrorCode = "UNSUPPORTED_CODEC"
	ErrStoreFetch          ErrorCode = "STORE_FETCH"
	ErrDocumentParse       ErrorCode = "DOCUMENT_PARSE"
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrCanceled            ErrorCode = "CANCELED"
	ErrInternal            ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

var kindCodes = map[loader.Kind]ErrorCode{
	loader.KindUnrecognizedScheme:  ErrUnrecognizedScheme,
	loader.KindMalformedIdentifier: ErrMalformedIdentifier,
	loader.KindUnsupportedCodec:    ErrUnsupportedCodec,
	loader.KindStoreFetch:          ErrStoreFetch,
	loader.KindDocumentParse:       ErrDocumentParse,
}

// FromError projects err onto a CodedError. A nil err yields nil.
func FromError(err error) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce
	}
	if code, ok := kindCodes[loader.KindOf(err)]; ok {
		return NewError(code, err.Error())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrCanceled, err.Error())
	}
	return NewError(ErrInternal, err.Error())
}
