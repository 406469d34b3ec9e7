package processor

import (
	"errors"
	"fmt"
)

// State is the phase a Processor is in
type State int32

const (
	Idle State = iota
	Parsing
	Synthesizing
	Writing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Parsing:
		return "parsing"
	case Synthesizing:
		return "synthesizing"
	case Writing:
		return "writing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrPartialFailure is returned when KeepGoing is set and some rows failed.
// The rows that succeeded have been written.
var ErrPartialFailure = errors.New("some rows failed")

// ErrAlreadyRun is returned when Run is called a second time
var ErrAlreadyRun = errors.New("processor has already run")

// StageError names the stage an error left the pipeline in
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
