package domain

import (
	"errors"
	"fmt"
)

// Error classes. Errors produced by the engine wrap one of these so callers
// can branch with errors.Is.
var (
	// ErrValidation marks bad buffer shapes, alignment or formats. Node scoped.
	ErrValidation = errors.New("validation failed")
	// ErrMapping marks a failed cross-core address translation. Buffer scoped.
	ErrMapping = errors.New("address mapping failed")
	// ErrTransport marks a remote call that could not be issued or completed.
	ErrTransport = errors.New("transport failure")
	// ErrUnknownKernel aborts the current sub-graph submission.
	ErrUnknownKernel = errors.New("unknown kernel")
)

var (
	ErrCoreDisabled   = fmt.Errorf("%w: core is not enabled", ErrMapping)
	ErrNullAddress    = fmt.Errorf("%w: null address", ErrMapping)
	ErrShortResponse  = fmt.Errorf("%w: response size mismatch", ErrTransport)
	ErrUnknownFunc    = fmt.Errorf("%w: unknown remote function", ErrTransport)
	ErrBadPayload     = fmt.Errorf("%w: payload slot mismatch", ErrValidation)
	ErrManifestFormat = fmt.Errorf("%w: invalid graph manifest", ErrValidation)
)

var (
	ErrUnknownCore     = errors.New("unknown core")
	ErrLoadExceeded    = errors.New("core load exceeded")
	ErrNoManager       = errors.New("no manager supports kernel")
	ErrClosed          = errors.New("engine closed")
	ErrRunNotFound     = errors.New("run not found")
	ErrOutOfRange      = errors.New("address out of range")
	ErrVersionMismatch = errors.New("graph manager version mismatch")
	// ErrRemote marks a graph manager call the remote core refused.
	ErrRemote          = errors.New("remote execution failed")
)
