package harness

import (
	"errors"
	"fmt"
)

// ErrToolLoopExceeded is returned when a model keeps requesting tools after
// the iteration bound has been spent.
var ErrToolLoopExceeded = errors.New("tool loop exceeded")

// LoopExceededError records which agent ran out of iterations.
type LoopExceededError struct {
	Agent      string
	Iterations int
}

func (e *LoopExceededError) Error() string {
	return fmt.Sprintf("%s: agent %s still requested tools after %d model calls", ErrToolLoopExceeded, e.Agent, e.Iterations)
}

func (e *LoopExceededError) Unwrap() error { return ErrToolLoopExceeded }
