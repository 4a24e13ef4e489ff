package storage

import "errors"

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")
	ErrNotDir      = errors.New("storage: path crosses a non-directory block")
	ErrIsDir       = errors.New("storage: path names a directory")
	ErrTooLarge    = errors.New("storage: payload exceeds size limit")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
