package speck

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// TB is the part of testing.TB a Spec reports through.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
	Failed() bool
}

// Spec is the runtime state of one feature.
//
// Thread Safety: Spec is owned by the test goroutine. Only mock dispatch
// (Mock.Called) may happen on other goroutines.
type Spec struct {
	t TB

	mu     sync.Mutex
	scopes []*interactionScope

	// soft is the nesting depth of VerifyAll.
	soft         int
	softFailures []string

	// Outcome of the last Run.
	ran    bool
	thrown *thrownValue
}

// interactionScope holds the interactions registered between EnterScope and
// LeaveScope. The outermost scope spans the whole feature.
type interactionScope struct {
	interactions []*ExpectedInteraction
}

type thrownValue struct {
	value any
}

// err returns the thrown value as an error.
func (v *thrownValue) err() error {
	if err, ok := v.value.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", v.value)
}

// New creates the runtime state for a feature and opens its outermost scope.
// Generated code defers the matching LeaveScope.
func New(t TB) *Spec {
	return &Spec{
		t:      t,
		scopes: []*interactionScope{{}},
	}
}

// EnterScope opens an interaction scope for a when/then group.
func (s *Spec) EnterScope() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes = append(s.scopes, &interactionScope{})
}

// LeaveScope closes the innermost interaction scope and fails the test with
// an *InteractionNotSatisfiedError if any of its interactions is unsatisfied.
//
// Verification is skipped when the test has already failed.
//
//go:noinline
func (s *Spec) LeaveScope() {
	s.t.Helper()

	s.mu.Lock()
	if len(s.scopes) == 0 {
		s.mu.Unlock()
		panic("speck: internal error: LeaveScope without matching EnterScope")
	}
	scope := s.scopes[len(s.scopes)-1]
	s.scopes = s.scopes[:len(s.scopes)-1]
	unsatisfied := scope.unsatisfied()
	s.mu.Unlock()

	if len(unsatisfied) == 0 || s.t.Failed() {
		return
	}
	err, _ := NewInteractionNotSatisfiedError(unsatisfied)
	loc := err.Location()
	s.t.Fatalf("%s:%d: %v", loc.File, loc.Line, err)
}

func (sc *interactionScope) unsatisfied() []Interaction {
	var out []Interaction
	for _, in := range sc.interactions {
		if !in.satisfied() {
			out = append(out, in)
		}
	}
	return out
}

// Verify checks an implicit condition. text and line identify the condition
// in the spec source.
func (s *Spec) Verify(cond bool, text string, line int) {
	s.t.Helper()
	if cond {
		return
	}
	msg := fmt.Sprintf("line %d: Condition not satisfied:\n\n%s\n", line, text)
	if s.soft > 0 {
		s.softFailures = append(s.softFailures, msg)
		return
	}
	s.t.Fatalf("%s", msg)
}

// VerifyAll runs body and reports every failed condition inside it instead
// of stopping at the first one.
func (s *Spec) VerifyAll(body func()) {
	s.t.Helper()

	saved := s.softFailures
	s.softFailures = nil
	s.soft++
	body()
	s.soft--
	failures := s.softFailures
	s.softFailures = saved

	if len(failures) == 0 {
		return
	}
	if s.soft > 0 {
		s.softFailures = append(s.softFailures, failures...)
		return
	}
	s.t.Fatalf("Multiple Failures (%d failures)\n\n%s", len(failures), strings.Join(failures, "\n"))
}

// With runs body with target. Conditions in body refer to the target through
// the lambda parameter.
func With[T any](target T, body func(T)) {
	body(target)
}

// Interaction runs body, which registers interactions in the current scope.
func (s *Spec) Interaction(body func()) {
	body()
}

// Run executes a stimulus and records a panic instead of propagating it, so
// that a following Thrown or NotThrown can inspect it.
func (s *Spec) Run(stimulus func()) {
	s.ran = true
	s.thrown = nil
	defer func() {
		if v := recover(); v != nil {
			s.thrown = &thrownValue{value: v}
		}
	}()
	stimulus()
}

// Thrown checks that the last stimulus panicked with a value matching target
// and returns it as an error.
//
// target may be nil (anything), an error value (matched with errors.Is), a
// typed nil pointer such as (*MyError)(nil) (matched by type along the Unwrap
// chain), or any other value (matched by equality with the panic value).
func (s *Spec) Thrown(target any, text string, line int) error {
	s.t.Helper()
	s.checkRan(text, line)

	if s.thrown == nil {
		s.t.Fatalf("line %d: Expected exception %s, but no exception was thrown\n\n%s\n",
			line, describeTarget(target), text)
		return nil
	}
	if !s.thrown.matches(target) {
		s.t.Fatalf("line %d: Expected exception %s, but got %v\n\n%s\n",
			line, describeTarget(target), s.thrown.value, text)
		return nil
	}
	return s.thrown.err()
}

// NotThrown checks that the last stimulus did not panic. A panic that does
// not match target fails the test as well, as an unexpected exception.
func (s *Spec) NotThrown(target any, text string, line int) {
	s.t.Helper()
	s.checkRan(text, line)

	if s.thrown == nil {
		return
	}
	if s.thrown.matches(target) {
		s.t.Fatalf("line %d: Expected no exception %s to be thrown, but got %v\n\n%s\n",
			line, describeTarget(target), s.thrown.value, text)
		return
	}
	s.t.Fatalf("line %d: Unexpected exception %v\n\n%s\n", line, s.thrown.value, text)
}

func (s *Spec) checkRan(text string, line int) {
	if !s.ran {
		panic(fmt.Sprintf("speck: internal error: exception condition %q at line %d without stimulus", text, line))
	}
}

func (v *thrownValue) matches(target any) bool {
	if target == nil {
		return true
	}

	rt := reflect.ValueOf(target)
	typedNil := rt.Kind() == reflect.Pointer && rt.IsNil()

	if targetErr, ok := target.(error); ok && !typedNil {
		return errors.Is(v.err(), targetErr)
	}
	if typedNil {
		for err := v.err(); err != nil; err = errors.Unwrap(err) {
			if reflect.TypeOf(err) == rt.Type() {
				return true
			}
		}
		return false
	}
	return reflect.DeepEqual(v.value, target)
}

func describeTarget(target any) string {
	if target == nil {
		return "of any kind"
	}
	rt := reflect.ValueOf(target)
	if rt.Kind() == reflect.Pointer && rt.IsNil() {
		return fmt.Sprintf("of type %s", rt.Type())
	}
	return fmt.Sprintf("%v", target)
}
