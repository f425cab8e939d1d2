package speck

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"strings"

	"github.com/go-stack/stack"
)

// ErrNoInteractions is returned when an InteractionNotSatisfiedError is
// requested for an empty list.
var ErrNoInteractions = errors.New("speck: no unsatisfied interactions given")

// Interaction is the view of a declared interaction the failure report needs.
type Interaction interface {
	fmt.Stringer

	// Line is the spec source line of the declaration.
	Line() int

	// AcceptedCount is how many invocations the interaction accepted.
	AcceptedCount() int
}

// Frame is one entry of a captured call stack.
type Frame struct {
	Function string
	File     string
	Line     int
}

// String returns "file:line".
func (f Frame) String() string {
	return fmt.Sprintf("%s:%d", f.File, f.Line)
}

// sentinelFunc is the function whose caller's frame is redirected to the
// first unsatisfied interaction. LeaveScope builds the error that reads it,
// so it is resolved in init rather than by a variable initializer.
var sentinelFunc string

func init() {
	sentinelFunc = runtime.FuncForPC(reflect.ValueOf((*Spec).LeaveScope).Pointer()).Name()
}

// InteractionNotSatisfiedError reports interactions that accepted fewer
// invocations than declared.
type InteractionNotSatisfiedError struct {
	unsatisfied []Interaction
	trace       []Frame

	// location indexes the frame that called the sentinel.
	location int
}

// NewInteractionNotSatisfiedError builds the error for interactions and
// captures the current call stack. The frame that called (*Spec).LeaveScope
// is reported at the line of the first interaction.
//
// Returns ErrNoInteractions for an empty list. Panics if the call stack does
// not contain LeaveScope and its caller; the error is only built during
// scope verification.
func NewInteractionNotSatisfiedError(interactions []Interaction) (*InteractionNotSatisfiedError, error) {
	if len(interactions) == 0 {
		return nil, ErrNoInteractions
	}
	return newInteractionNotSatisfiedError(interactions, captureTrace())
}

func newInteractionNotSatisfiedError(interactions []Interaction, trace []Frame) (*InteractionNotSatisfiedError, error) {
	if len(interactions) == 0 {
		return nil, ErrNoInteractions
	}

	loc := callerOf(trace, sentinelFunc)
	if loc < 0 {
		panic(fmt.Sprintf("speck: internal error: caller of %s not found in stack trace", sentinelFunc))
	}
	trace[loc].Line = interactions[0].Line()

	return &InteractionNotSatisfiedError{
		unsatisfied: append([]Interaction(nil), interactions...),
		trace:       trace,
		location:    loc,
	}, nil
}

func captureTrace() []Frame {
	calls := stack.Trace().TrimRuntime()
	frames := make([]Frame, 0, len(calls))
	for _, c := range calls {
		f := c.Frame()
		frames = append(frames, Frame{Function: f.Function, File: f.File, Line: f.Line})
	}
	return frames
}

// callerOf returns the index of the first non-runtime frame after the
// sentinel frame, or -1. Deferred calls run below runtime frames while
// panicking.
func callerOf(trace []Frame, sentinel string) int {
	for i, f := range trace {
		if f.Function != sentinel {
			continue
		}
		for j := i + 1; j < len(trace); j++ {
			if !strings.HasPrefix(trace[j].Function, "runtime.") {
				return j
			}
		}
		return -1
	}
	return -1
}

// Error returns the summary.
func (e *InteractionNotSatisfiedError) Error() string {
	return e.String()
}

// String renders "Unsatisfied interactions:" followed by one line per
// interaction with its accepted count.
func (e *InteractionNotSatisfiedError) String() string {
	var b strings.Builder
	b.WriteString("Unsatisfied interactions:\n")
	for _, in := range e.unsatisfied {
		n := in.AcceptedCount()
		fmt.Fprintf(&b, "%s   (%d %s)\n", in, n, plural(n, "match"))
	}
	return b.String()
}

// Unsatisfied returns the interactions the error was built from.
func (e *InteractionNotSatisfiedError) Unsatisfied() []Interaction {
	return e.unsatisfied
}

// StackTrace returns the captured stack with the sentinel caller's line
// rewritten.
func (e *InteractionNotSatisfiedError) StackTrace() []Frame {
	return e.trace
}

// Location returns the frame pointing at the first unsatisfied interaction.
func (e *InteractionNotSatisfiedError) Location() Frame {
	return e.trace[e.location]
}

// Format implements fmt.Formatter. %+v appends the stack trace.
func (e *InteractionNotSatisfiedError) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		_, _ = io.WriteString(f, e.String())
		if f.Flag('+') {
			for _, fr := range e.trace {
				fmt.Fprintf(f, "\t%s\n\t\t%s\n", fr.Function, fr)
			}
		}
	case 's':
		_, _ = io.WriteString(f, e.String())
	case 'q':
		fmt.Fprintf(f, "%q", e.String())
	}
}

// plural returns word for n == 1 and its English plural otherwise.
func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	if strings.HasSuffix(word, "ch") {
		return word + "es"
	}
	return word + "s"
}
