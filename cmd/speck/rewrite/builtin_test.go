package rewrite

import (
	"go/ast"
	"go/token"
	"testing"
)

// findCall returns the first call named name in stmt, with the innermost
// binary expression enclosing it.
func findCall(stmt ast.Node, name string) (*ast.CallExpr, *ast.BinaryExpr) {
	var (
		found     *ast.CallExpr
		enclosing *ast.BinaryExpr
		binaries  []*ast.BinaryExpr
	)
	ast.Inspect(stmt, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		switch x := n.(type) {
		case nil:
			return false
		case *ast.BinaryExpr:
			binaries = append(binaries, x)
		case *ast.CallExpr:
			if callName(x) == name {
				found = x
				for i := len(binaries) - 1; i >= 0; i-- {
					if binaries[i].Pos() <= x.Pos() && x.End() <= binaries[i].End() {
						enclosing = binaries[i]
						break
					}
				}
			}
		}
		return true
	})
	return found, enclosing
}

// TestParseBuiltInCall tests shape recognition.
func TestParseBuiltInCall(t *testing.T) {
	tests := []struct {
		name     string
		stmt     string
		call     string
		wantKind BuiltInKind // BuiltInNone means not recognized
		stmtHit  bool        // IsMatch on the statement
	}{
		{"interaction", `1 * sub.Receive("hi")`, "Receive", BuiltInInteraction, true},
		{"interaction with response", `1 * sub.Fetch() >> 42`, "Fetch", BuiltInInteraction, true},
		{"interaction in parens", `(2 * (sub.Fetch()))`, "Fetch", BuiltInInteraction, true},
		{"any times", `_ * sub.Fetch()`, "Fetch", BuiltInInteraction, true},
		{"multiplication of function result", `1 * fetch()`, "fetch", BuiltInNone, false},
		{"call on left of product", `sub.Fetch() * 2`, "Fetch", BuiltInNone, false},
		{"nested interaction", `use(1 * sub.Fetch())`, "Fetch", BuiltInInteraction, false},
		{"with", `with(p, func(p *P) {})`, "with", BuiltInWith, true},
		{"with without lambda", `with(p, f)`, "with", BuiltInNone, false},
		{"verifyAll", `verifyAll(func() {})`, "verifyAll", BuiltInVerifyAll, true},
		{"interaction block", `interaction(func() {})`, "interaction", BuiltInInteractionBlock, true},
		{"thrown", `thrown(ErrEmpty)`, "thrown", BuiltInThrown, true},
		{"thrown without target", `thrown()`, "thrown", BuiltInThrown, true},
		{"thrown assigned", `err := thrown(ErrEmpty)`, "thrown", BuiltInThrown, true},
		{"notThrown", `notThrown(ErrEmpty)`, "notThrown", BuiltInNotThrown, true},
		{"thrown with two args", `thrown(a, b)`, "thrown", BuiltInNone, false},
		{"ordinary call", `s.Push(1)`, "Push", BuiltInNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stmts := parseStmts(t, tt.stmt)
			call, enclosing := findCall(stmts[0], tt.call)
			if call == nil {
				t.Fatalf("call %s not found", tt.call)
			}

			got := ParseBuiltInCall(call, enclosing)
			if tt.wantKind == BuiltInNone {
				if got != nil {
					t.Fatalf("ParseBuiltInCall() = %v, want nil", got.Kind())
				}
				return
			}
			if got == nil {
				t.Fatalf("ParseBuiltInCall() = nil, want %v", tt.wantKind)
			}
			if got.Kind() != tt.wantKind {
				t.Errorf("Kind() = %v, want %v", got.Kind(), tt.wantKind)
			}
			if got.Call() != call {
				t.Errorf("Call() returned a different call")
			}
			if hit := got.IsMatch(stmts[0]); hit != tt.stmtHit {
				t.Errorf("IsMatch(stmt) = %v, want %v", hit, tt.stmtHit)
			}
		})
	}
}

// TestBuiltInCall_IsMatchLambda tests that only the owned lambda matches.
func TestBuiltInCall_IsMatchLambda(t *testing.T) {
	_, stmts := parseStmts(t, `with(p, func(p *P) { run(func() {}) })`)
	call, _ := findCall(stmts[0], "with")
	builtIn := ParseBuiltInCall(call, nil)

	owned := call.Args[1].(*ast.FuncLit)
	inner := owned.Body.List[0].(*ast.ExprStmt).X.(*ast.CallExpr).Args[0].(*ast.FuncLit)

	if !builtIn.IsMatch(owned) {
		t.Error("IsMatch(owned lambda) = false, want true")
	}
	if builtIn.IsMatch(inner) {
		t.Error("IsMatch(unrelated lambda) = true, want false")
	}
	if builtIn.IsMatch((*ast.FuncLit)(nil)) {
		t.Error("IsMatch(nil lambda) = true, want false")
	}
	if builtIn.IsMatch(&ast.ReturnStmt{}) {
		t.Error("IsMatch(other node) = true, want false")
	}
}

// TestNullBuiltInCall tests the shared no-op matcher.
func TestNullBuiltInCall(t *testing.T) {
	_, stmts := parseStmts(t, `verifyAll(func() {})`)
	lambda := stmts[0].(*ast.ExprStmt).X.(*ast.CallExpr).Args[0]

	for _, n := range []ast.Node{stmts[0], lambda, nil, &ast.BinaryExpr{Op: token.MUL}} {
		if NullBuiltInCall.IsMatch(n) {
			t.Errorf("NullBuiltInCall.IsMatch(%T) = true", n)
		}
	}
	if NullBuiltInCall.Kind() != BuiltInNone || NullBuiltInCall.Call() != nil {
		t.Error("NullBuiltInCall must report no kind and no call")
	}
}

// TestBuiltInKind_Predicates tests the kind classification helpers.
func TestBuiltInKind_Predicates(t *testing.T) {
	tests := []struct {
		kind      BuiltInKind
		condition bool
		exception bool
	}{
		{BuiltInNone, false, false},
		{BuiltInInteraction, false, false},
		{BuiltInWith, true, false},
		{BuiltInVerifyAll, true, false},
		{BuiltInInteractionBlock, false, false},
		{BuiltInThrown, false, true},
		{BuiltInNotThrown, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.IsConditionBlock(); got != tt.condition {
				t.Errorf("IsConditionBlock() = %v, want %v", got, tt.condition)
			}
			if got := tt.kind.IsExceptionCondition(); got != tt.exception {
				t.Errorf("IsExceptionCondition() = %v, want %v", got, tt.exception)
			}
		})
	}
}
