package speck

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/go-cmp/cmp"
)

// Mockable is implemented by every type that embeds Mock.
type Mockable interface {
	speckMock() *Mock
}

// Mock records nothing by itself; it dispatches calls to the interactions
// declared on the Spec it was last used with.
//
// The zero value is ready to use.
type Mock struct {
	mu   sync.Mutex
	spec *Spec
}

func (m *Mock) speckMock() *Mock { return m }

func (m *Mock) bind(s *Spec) {
	m.mu.Lock()
	m.spec = s
	m.mu.Unlock()
}

// Called dispatches a mock method invocation and returns the response of the
// matching interaction. It returns nil when no interaction matches or none
// has a response.
//
// Called may be used from any goroutine.
func (m *Mock) Called(method string, args ...any) []any {
	m.mu.Lock()
	s := m.spec
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.dispatch(m, method, args)
}

// dispatch finds the interaction accepting the call, innermost scope first
// and in declaration order within a scope.
func (s *Spec) dispatch(m *Mock, method string, args []any) []any {
	s.mu.Lock()

	var (
		exhausted *ExpectedInteraction
		count     int
	)
	for i := len(s.scopes) - 1; i >= 0; i-- {
		for _, in := range s.scopes[i].interactions {
			if !in.matches(m, method, args) {
				continue
			}
			if in.cardinality.accepts(in.accepted + 1) {
				in.accepted++
				resp := in.response
				s.mu.Unlock()
				return resp
			}
			if exhausted == nil {
				exhausted = in
				count = in.accepted + 1
			}
		}
	}
	s.mu.Unlock()

	if exhausted != nil {
		s.t.Errorf("line %d: Too many invocations for:\n\n%s   (%d %s)\n\nUnmatched invocation: %s%s\n",
			exhausted.line, exhausted.text, count, plural(count, "invocation"), method, formatArgs(args))
	}
	return nil
}

// ExpectedInteraction is a declared interaction: a mock method call with
// arguments, a cardinality and an optional response.
type ExpectedInteraction struct {
	mock        *Mock
	method      string
	args        []any
	cardinality Cardinality
	response    []any

	text string
	line int

	// accepted is guarded by the owning Spec's mutex.
	accepted int
	spec     *Spec
}

// Expect declares an interaction in the current scope.
//
// count is an int (exact count) or a Cardinality. args are the expected
// arguments: Anything, a Matcher, or values compared structurally.
//
// An invalid count fails the test. The returned interaction is then not
// registered, so calls chained on it have no effect.
func (s *Spec) Expect(count any, target Mockable, method string, args []any, text string, line int) *ExpectedInteraction {
	s.t.Helper()

	card, err := toCardinality(count)
	if err != nil {
		s.t.Fatalf("line %d: %v\n\n%s\n", line, err, text)
		return &ExpectedInteraction{method: method, args: args, text: text, line: line, spec: s}
	}

	m := target.speckMock()
	m.bind(s)

	in := &ExpectedInteraction{
		mock:        m,
		method:      method,
		args:        args,
		cardinality: card,
		text:        text,
		line:        line,
		spec:        s,
	}

	s.mu.Lock()
	top := s.scopes[len(s.scopes)-1]
	top.interactions = append(top.interactions, in)
	s.mu.Unlock()
	return in
}

// Respond sets the values returned to the mock when the interaction
// accepts a call.
func (in *ExpectedInteraction) Respond(values ...any) *ExpectedInteraction {
	in.spec.mu.Lock()
	in.response = values
	in.spec.mu.Unlock()
	return in
}

// String returns the interaction as written in the spec.
func (in *ExpectedInteraction) String() string {
	return in.text
}

// Line returns the spec source line of the declaration.
func (in *ExpectedInteraction) Line() int {
	return in.line
}

// AcceptedCount returns how many invocations the interaction accepted.
func (in *ExpectedInteraction) AcceptedCount() int {
	in.spec.mu.Lock()
	defer in.spec.mu.Unlock()
	return in.accepted
}

// IsSatisfied reports whether the minimum invocation count was reached.
func (in *ExpectedInteraction) IsSatisfied() bool {
	in.spec.mu.Lock()
	defer in.spec.mu.Unlock()
	return in.satisfied()
}

func (in *ExpectedInteraction) satisfied() bool {
	return in.accepted >= in.cardinality.Min
}

func (in *ExpectedInteraction) matches(m *Mock, method string, args []any) bool {
	if in.mock != m || in.method != method || len(in.args) != len(args) {
		return false
	}
	for i, want := range in.args {
		if !matchArg(want, args[i]) {
			return false
		}
	}
	return true
}

// Matcher matches a single mock argument.
type Matcher interface {
	Matches(arg any) bool
}

type anything struct{}

func (anything) Matches(any) bool { return true }
func (anything) String() string   { return "_" }

// Anything matches every argument. The rewriter uses it for `_` arguments.
var Anything Matcher = anything{}

type funcMatcher func(any) bool

func (f funcMatcher) Matches(arg any) bool { return f(arg) }

// Match returns a Matcher backed by pred.
func Match(pred func(arg any) bool) Matcher {
	return funcMatcher(pred)
}

// equalOpts compares unexported fields too; mocks see whole values.
var equalOpts = []cmp.Option{
	cmp.Exporter(func(reflect.Type) bool { return true }),
}

func matchArg(want, got any) bool {
	if m, ok := want.(Matcher); ok {
		return m.Matches(got)
	}
	return cmp.Equal(want, got, equalOpts...)
}

func formatArgs(args []any) string {
	s := "("
	for i, a := range args {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%#v", a)
	}
	return s + ")"
}
