package speck

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fakeInteraction struct {
	text     string
	line     int
	accepted int
}

func (f fakeInteraction) String() string     { return f.text }
func (f fakeInteraction) Line() int          { return f.line }
func (f fakeInteraction) AcceptedCount() int { return f.accepted }

// syntheticTrace is a stack as captured while LeaveScope verifies a scope.
func syntheticTrace() []Frame {
	return []Frame{
		{Function: "github.com/kolkov/speck/speck.captureTrace", File: "interaction_error.go", Line: 88},
		{Function: "github.com/kolkov/speck/speck.NewInteractionNotSatisfiedError", File: "interaction_error.go", Line: 66},
		{Function: sentinelFunc, File: "spec.go", Line: 94},
		{Function: "example.com/stack.TestPush", File: "stack_test.go", Line: 31},
		{Function: "testing.tRunner", File: "testing.go", Line: 1690},
	}
}

// TestNewInteractionNotSatisfiedError_Empty tests that an empty list is
// rejected.
func TestNewInteractionNotSatisfiedError_Empty(t *testing.T) {
	for _, list := range [][]Interaction{nil, {}} {
		err, cerr := NewInteractionNotSatisfiedError(list)
		if err != nil {
			t.Errorf("error value = %v, want nil", err)
		}
		if !errors.Is(cerr, ErrNoInteractions) {
			t.Errorf("construction error = %v, want ErrNoInteractions", cerr)
		}
	}
}

// TestInteractionNotSatisfiedError_String tests the exact summary for two
// interactions.
func TestInteractionNotSatisfiedError_String(t *testing.T) {
	list := []Interaction{
		fakeInteraction{text: `1 * sub.Receive("hello")`, line: 12, accepted: 0},
		fakeInteraction{text: `2 * sub.Close()`, line: 13, accepted: 1},
	}
	err, cerr := newInteractionNotSatisfiedError(list, syntheticTrace())
	if cerr != nil {
		t.Fatalf("construction error = %v", cerr)
	}

	want := "Unsatisfied interactions:\n" +
		"1 * sub.Receive(\"hello\")   (0 matches)\n" +
		"2 * sub.Close()   (1 match)\n"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got := fmt.Sprintf("%v", err); got != want {
		t.Errorf("%%v = %q, want %q", got, want)
	}
}

// TestInteractionNotSatisfiedError_Lines tests one summary line per
// interaction with singular/plural wording.
func TestInteractionNotSatisfiedError_Lines(t *testing.T) {
	counts := []int{0, 1, 2, 5, 1}
	list := make([]Interaction, len(counts))
	for i, c := range counts {
		list[i] = fakeInteraction{text: fmt.Sprintf("i%d", i), line: i + 1, accepted: c}
	}

	err, cerr := newInteractionNotSatisfiedError(list, syntheticTrace())
	if cerr != nil {
		t.Fatalf("construction error = %v", cerr)
	}

	lines := strings.Split(strings.TrimSuffix(err.String(), "\n"), "\n")
	if len(lines) != len(counts)+1 {
		t.Fatalf("got %d lines, want %d", len(lines), len(counts)+1)
	}
	for i, c := range counts {
		word := "matches"
		if c == 1 {
			word = "match"
		}
		want := fmt.Sprintf("i%d   (%d %s)", i, c, word)
		if lines[i+1] != want {
			t.Errorf("line %d = %q, want %q", i+1, lines[i+1], want)
		}
	}
}

// TestInteractionNotSatisfiedError_Location tests that the caller of the
// sentinel points at the first interaction.
func TestInteractionNotSatisfiedError_Location(t *testing.T) {
	list := []Interaction{
		fakeInteraction{text: "a", line: 57},
		fakeInteraction{text: "b", line: 60},
	}
	err, cerr := newInteractionNotSatisfiedError(list, syntheticTrace())
	if cerr != nil {
		t.Fatalf("construction error = %v", cerr)
	}

	want := Frame{Function: "example.com/stack.TestPush", File: "stack_test.go", Line: 57}
	if diff := cmp.Diff(want, err.Location()); diff != "" {
		t.Errorf("Location() mismatch (-want +got):\n%s", diff)
	}

	// Only the caller frame is rewritten.
	trace := err.StackTrace()
	orig := syntheticTrace()
	for i := range trace {
		if i == 3 {
			continue
		}
		if trace[i] != orig[i] {
			t.Errorf("frame %d changed: %v", i, trace[i])
		}
	}

	if !strings.Contains(fmt.Sprintf("%+v", err), "\texample.com/stack.TestPush\n\t\tstack_test.go:57\n") {
		t.Errorf("%%+v does not contain the rewritten frame:\n%+v", err)
	}
	if diff := cmp.Diff(list, err.Unsatisfied(), cmp.AllowUnexported(fakeInteraction{})); diff != "" {
		t.Errorf("Unsatisfied() mismatch (-want +got):\n%s", diff)
	}
}

// TestInteractionNotSatisfiedError_SkipsRuntimeFrames tests deferred
// verification while panicking.
func TestInteractionNotSatisfiedError_SkipsRuntimeFrames(t *testing.T) {
	trace := []Frame{
		{Function: sentinelFunc, File: "spec.go", Line: 94},
		{Function: "runtime.gopanic", File: "panic.go", Line: 770},
		{Function: "example.com/stack.TestPop", File: "stack_test.go", Line: 40},
	}
	err, _ := newInteractionNotSatisfiedError([]Interaction{fakeInteraction{line: 21}}, trace)

	if loc := err.Location(); loc.Function != "example.com/stack.TestPop" || loc.Line != 21 {
		t.Errorf("Location() = %+v, want TestPop at line 21", loc)
	}
}

// TestInteractionNotSatisfiedError_MissingSentinel tests the internal
// assertion on the captured stack.
func TestInteractionNotSatisfiedError_MissingSentinel(t *testing.T) {
	tests := []struct {
		name  string
		trace []Frame
	}{
		{"no sentinel", []Frame{{Function: "example.com/stack.TestPush"}}},
		{"sentinel without caller", []Frame{{Function: sentinelFunc}, {Function: "runtime.goexit"}}},
		{"empty trace", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if r == nil {
					t.Fatal("expected panic")
				}
				if !strings.HasPrefix(fmt.Sprint(r), "speck: internal error:") {
					t.Errorf("panic = %v, want internal error", r)
				}
			}()
			_, _ = newInteractionNotSatisfiedError([]Interaction{fakeInteraction{}}, tt.trace)
		})
	}
}

// TestNewInteractionNotSatisfiedError_OutsideLeaveScope tests that a real
// stack without the sentinel aborts loudly.
func TestNewInteractionNotSatisfiedError_OutsideLeaveScope(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic when built outside LeaveScope")
		}
	}()
	_, _ = NewInteractionNotSatisfiedError([]Interaction{fakeInteraction{text: "x"}})
}

// TestSentinelFunc tests that the sentinel resolves to LeaveScope.
func TestSentinelFunc(t *testing.T) {
	const want = "github.com/kolkov/speck/speck.(*Spec).LeaveScope"
	if sentinelFunc != want {
		t.Errorf("sentinelFunc = %q, want %q", sentinelFunc, want)
	}
}
