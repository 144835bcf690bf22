package rotation

import (
	"errors"
	"fmt"

	kit "linkguard/internal/transport"
)

var (
	ErrConfigInvalid  = errors.New("invalid rotation config")
	ErrAlreadyRunning = errors.New("rotation already running")
	ErrNotRunning     = errors.New("rotation not running")
)

// GenerationError is a per-source invite link failure. It never aborts the
// other sources of a cycle.
type GenerationError struct {
	Source SourceChat
	Kind   kit.ErrorKind
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s: %s: %v", e.Source.ID, e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

type PublishOp string

const (
	OpSend PublishOp = "send"
	OpEdit PublishOp = "edit"
)

// PublishError aborts the publish step of a cycle. PublishState is kept.
type PublishError struct {
	Op  PublishOp
	Err error
}

func (e *PublishError) Error() string { return fmt.Sprintf("publish %s: %v", e.Op, e.Err) }

func (e *PublishError) Unwrap() error { return e.Err }
