package base

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the UI object model. Operations wrap these with
// context via fmt.Errorf("...: %w"); test with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTypeConstraint  = errors.New("type constraint violated")
	ErrNoSuchAttribute = errors.New("no such attribute")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrTimeout         = errors.New("timed out")
)

// ErrNoSession is returned by every operation of a library used before its
// session exists.
var ErrNoSession = fmt.Errorf("%w: no session bound", ErrInvalidState)
