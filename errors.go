package pescan

import (
	"errors"

	"github.com/s-hammon/pescan/internal/sig"
)

var (
	// ErrValidation reports a failed image signature check.
	ErrValidation = errors.New("image signature mismatch")
	// ErrFormat reports a truncated or malformed image header.
	ErrFormat = errors.New("malformed image header")
	// ErrNotFound reports an absent pattern, prologue or module.
	ErrNotFound = errors.New("not found")
	// ErrRange reports a selection or window outside the valid bounds.
	ErrRange = errors.New("out of range")
	// ErrSyntax reports a malformed signature string.
	ErrSyntax = sig.ErrSyntax
	// ErrAccess reports a failed process handle or remote read.
	ErrAccess = errors.New("process access failed")
	// ErrIO reports an unreadable image file.
	ErrIO = errors.New("image file unreadable")
)
