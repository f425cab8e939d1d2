package rewrite

import (
	"errors"
	"fmt"
	"go/ast"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// markingHooks renames every top-level call to "<name>_rw" and marks calls
// to names starting with "mark" as interactions.
type markingHooks struct {
	BaseHooks
	failAt string
}

func (h markingHooks) RewriteExprStmt(r *DeepRewriter, s *ast.ExprStmt) (ast.Stmt, error) {
	call, ok := s.X.(*ast.CallExpr)
	if !ok {
		return s, nil
	}
	name := callName(call)
	if name == h.failAt {
		return nil, errors.New("boom")
	}
	if strings.HasPrefix(name, "mark") {
		r.MarkInteraction()
	}
	return &ast.ExprStmt{X: &ast.CallExpr{Fun: ast.NewIdent(name + "_rw")}}, nil
}

func stmtNames(stmts []ast.Stmt) []string {
	names := make([]string, 0, len(stmts))
	for _, s := range stmts {
		names = append(names, callName(s.(*ast.ExprStmt).X.(*ast.CallExpr)))
	}
	return names
}

func newBlock(t *testing.T, kind BlockKind, names ...string) *Block {
	t.Helper()
	var body strings.Builder
	for _, n := range names {
		fmt.Fprintf(&body, "%s()\n", n)
	}
	_, stmts := parseStmts(t, body.String())
	return &Block{Kind: kind, Stmts: stmts}
}

// TestVisit_ThreeStatementScenario tests relocation of the middle statement.
func TestVisit_ThreeStatementScenario(t *testing.T) {
	block := newBlock(t, BlockThen, "first", "markSecond", "third")
	r := NewDeepRewriter(markingHooks{})

	if err := r.Visit(block); err != nil {
		t.Fatalf("Visit() error = %v", err)
	}

	if diff := cmp.Diff([]string{"first_rw", "third_rw"}, stmtNames(block.Stmts)); diff != "" {
		t.Errorf("block statements mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"markSecond_rw"}, stmtNames(r.InteractionStmts())); diff != "" {
		t.Errorf("interaction statements mismatch (-want +got):\n%s", diff)
	}
	if r.InteractionFound() {
		t.Error("InteractionFound() must be reset after relocation")
	}
}

// TestVisit_Partition tests that remaining and relocated statements
// partition the block in original order.
func TestVisit_Partition(t *testing.T) {
	tests := []struct {
		name          string
		stmts         []string
		wantRemaining []string
		wantMoved     []string
	}{
		{"empty block", nil, []string{}, nil},
		{"nothing marked", []string{"a", "b"}, []string{"a_rw", "b_rw"}, nil},
		{"all marked", []string{"mark1", "mark2"}, []string{}, []string{"mark1_rw", "mark2_rw"}},
		{
			name:          "interleaved",
			stmts:         []string{"mark1", "a", "mark2", "b", "c", "mark3"},
			wantRemaining: []string{"a_rw", "b_rw", "c_rw"},
			wantMoved:     []string{"mark1_rw", "mark2_rw", "mark3_rw"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := newBlock(t, BlockThen, tt.stmts...)
			r := NewDeepRewriter(markingHooks{})

			if err := r.Visit(block); err != nil {
				t.Fatalf("Visit() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantRemaining, stmtNames(block.Stmts)); diff != "" {
				t.Errorf("remaining mismatch (-want +got):\n%s", diff)
			}
			var moved []string
			if len(r.InteractionStmts()) > 0 {
				moved = stmtNames(r.InteractionStmts())
			}
			if diff := cmp.Diff(tt.wantMoved, moved); diff != "" {
				t.Errorf("moved mismatch (-want +got):\n%s", diff)
			}
			if got := len(block.Stmts) + len(r.InteractionStmts()); got != len(tt.stmts) {
				t.Errorf("partition size = %d, want %d", got, len(tt.stmts))
			}
		})
	}
}

// TestVisit_NonOutcomeBlockKeepsInteractions tests that only then blocks are
// split.
func TestVisit_NonOutcomeBlockKeepsInteractions(t *testing.T) {
	for _, kind := range []BlockKind{BlockSetup, BlockWhen, BlockExpect, BlockCleanup} {
		t.Run(kind.String(), func(t *testing.T) {
			block := newBlock(t, kind, "a", "markB", "c")
			r := NewDeepRewriter(markingHooks{})

			if err := r.Visit(block); err != nil {
				t.Fatalf("Visit() error = %v", err)
			}
			if diff := cmp.Diff([]string{"a_rw", "markB_rw", "c_rw"}, stmtNames(block.Stmts)); diff != "" {
				t.Errorf("block mismatch (-want +got):\n%s", diff)
			}
			if n := len(r.InteractionStmts()); n != 0 {
				t.Errorf("InteractionStmts() has %d statements, want 0", n)
			}
		})
	}
}

// TestVisit_BaseHooksIsNoOp tests that a rewriter which never marks
// interactions leaves the block as it was.
func TestVisit_BaseHooksIsNoOp(t *testing.T) {
	block := newBlock(t, BlockThen, "markA", "b", "markC")
	original := append([]ast.Stmt(nil), block.Stmts...)
	r := NewDeepRewriter(BaseHooks{})

	if err := r.Visit(block); err != nil {
		t.Fatalf("Visit() error = %v", err)
	}
	if len(block.Stmts) != len(original) {
		t.Fatalf("len(Stmts) = %d, want %d", len(block.Stmts), len(original))
	}
	for i := range original {
		if block.Stmts[i] != original[i] {
			t.Errorf("statement %d was replaced", i)
		}
	}
	if len(r.InteractionStmts()) != 0 {
		t.Error("InteractionStmts() must be empty")
	}
}

// TestVisit_ErrorLeavesBlockUnchanged tests that a failing statement aborts
// the split.
func TestVisit_ErrorLeavesBlockUnchanged(t *testing.T) {
	block := newBlock(t, BlockThen, "markA", "bad", "c")
	r := NewDeepRewriter(markingHooks{failAt: "bad"})

	if err := r.Visit(block); err == nil {
		t.Fatal("Visit() error = nil, want error")
	}
	if diff := cmp.Diff([]string{"markA", "bad", "c"}, stmtNames(block.Stmts)); diff != "" {
		t.Errorf("block mismatch (-want +got):\n%s", diff)
	}
	if r.TopLevelStmt() != nil {
		t.Error("TopLevelStmt() must be cleared")
	}
}

// TestVisit_Origin tests that rewritten and relocated statements map back to
// the statements they replaced.
func TestVisit_Origin(t *testing.T) {
	block := newBlock(t, BlockThen, "first", "markSecond", "third")
	orig := append([]ast.Stmt(nil), block.Stmts...)
	r := NewDeepRewriter(markingHooks{})

	if err := r.Visit(block); err != nil {
		t.Fatalf("Visit() error = %v", err)
	}

	got := []ast.Stmt{block.Stmts[0], r.InteractionStmts()[0], block.Stmts[1]}
	for i, s := range got {
		if s == orig[i] {
			t.Fatalf("statement %d was not replaced", i)
		}
		if r.Origin(s) != orig[i].Pos() {
			t.Errorf("Origin(%s) = %v, want %v", stmtNames([]ast.Stmt{s})[0], r.Origin(s), orig[i].Pos())
		}
	}

	// Statements the rewriter never produced keep their own position.
	if r.Origin(orig[0]) != orig[0].Pos() {
		t.Error("Origin() of an unknown statement must be its own position")
	}
}
