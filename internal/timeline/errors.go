package timeline

import "errors"

var (
	// ErrInvalidDuration is returned when a step declares a negative duration.
	ErrInvalidDuration = errors.New("timeline: duration must be >= 0")
	// ErrInvalidStep reports a step option that does not fit the step kind.
	ErrInvalidStep = errors.New("timeline: invalid step")
	// ErrUnknownLabel is returned under the strict label policy when a
	// completion wait references a label no earlier action defines.
	ErrUnknownLabel = errors.New("timeline: unknown label reference")
	// ErrAlreadyCommitted is returned when a block is committed twice.
	ErrAlreadyCommitted = errors.New("timeline: block already committed")
	// ErrBlockCommitted is returned when appending to a committed block.
	ErrBlockCommitted = errors.New("timeline: block is committed")
	// ErrBlockOpen is returned when opening a block while another is open.
	ErrBlockOpen = errors.New("timeline: a block is already open")
	// ErrNoOpenBlock is returned when the session has no open block.
	ErrNoOpenBlock = errors.New("timeline: no open block")
	// ErrUnknownHandle is returned for completions nobody is waiting on.
	ErrUnknownHandle = errors.New("timeline: unknown completion handle")
)
