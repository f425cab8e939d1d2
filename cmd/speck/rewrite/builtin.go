// Package rewrite - Built-in call recognition.
//
// Built-in calls are DSL idioms written as ordinary Go expressions. They are
// recognized purely by shape, never by type information:
//
//	1 * sub.Receive("hello")          // interaction (cardinality * call)
//	with(person, func(p *Person) {})  // conditions inside the lambda
//	verifyAll(func() {})              // soft conditions inside the lambda
//	interaction(func() {})            // grouped interactions
//	thrown(ErrEmpty)                  // exception condition
//	notThrown(ErrEmpty)               // negated exception condition
package rewrite

import (
	"go/ast"
	"go/token"
)

// BuiltInKind classifies a recognized built-in call.
type BuiltInKind int

const (
	// BuiltInNone is the kind of NullBuiltInCall.
	BuiltInNone BuiltInKind = iota
	// BuiltInInteraction is `count * target.Method(args...)`.
	BuiltInInteraction
	// BuiltInWith is `with(target, func(x T) {...})`.
	BuiltInWith
	// BuiltInVerifyAll is `verifyAll(func() {...})`.
	BuiltInVerifyAll
	// BuiltInInteractionBlock is `interaction(func() {...})`.
	BuiltInInteractionBlock
	// BuiltInThrown is `thrown()` or `thrown(target)`.
	BuiltInThrown
	// BuiltInNotThrown is `notThrown()` or `notThrown(target)`.
	BuiltInNotThrown
)

// String returns the DSL name of the kind.
func (k BuiltInKind) String() string {
	switch k {
	case BuiltInNone:
		return "none"
	case BuiltInInteraction:
		return "interaction"
	case BuiltInWith:
		return "with"
	case BuiltInVerifyAll:
		return "verifyAll"
	case BuiltInInteractionBlock:
		return "interaction block"
	case BuiltInThrown:
		return "thrown"
	case BuiltInNotThrown:
		return "notThrown"
	default:
		return "unknown"
	}
}

// IsConditionBlock reports whether statements in the owned lambda of a
// built-in call of this kind are implicit conditions.
func (k BuiltInKind) IsConditionBlock() bool {
	return k == BuiltInWith || k == BuiltInVerifyAll
}

// IsExceptionCondition reports whether the kind is thrown or notThrown.
func (k BuiltInKind) IsExceptionCondition() bool {
	return k == BuiltInThrown || k == BuiltInNotThrown
}

// BuiltInCall answers whether a node belongs to the built-in construct it
// was parsed from.
//
// IsMatch accepts either the statement the call was found in (is this
// statement the built-in construct itself?) or a lambda (is this lambda the
// body owned by the call, as opposed to an unrelated nested closure?).
type BuiltInCall interface {
	// Kind returns the recognized shape.
	Kind() BuiltInKind

	// Call returns the call expression the matcher was parsed from.
	Call() *ast.CallExpr

	// IsMatch reports whether node belongs to this built-in call.
	IsMatch(node ast.Node) bool
}

// nullBuiltInCall matches nothing.
type nullBuiltInCall struct{}

func (nullBuiltInCall) Kind() BuiltInKind       { return BuiltInNone }
func (nullBuiltInCall) Call() *ast.CallExpr     { return nil }
func (nullBuiltInCall) IsMatch(_ ast.Node) bool { return false }

// NullBuiltInCall is the shared matcher used when no built-in call is active.
var NullBuiltInCall BuiltInCall = nullBuiltInCall{}

// builtInCall is the matcher produced by ParseBuiltInCall.
type builtInCall struct {
	kind BuiltInKind
	call *ast.CallExpr

	// binary is the `count * call` expression (interactions only).
	binary *ast.BinaryExpr

	// body is the owned lambda, nil if the kind has none.
	body *ast.FuncLit
}

func (b *builtInCall) Kind() BuiltInKind   { return b.kind }
func (b *builtInCall) Call() *ast.CallExpr { return b.call }

// IsMatch implements BuiltInCall.
func (b *builtInCall) IsMatch(node ast.Node) bool {
	switch n := node.(type) {
	case *ast.ExprStmt:
		if n == nil {
			return false
		}
		return b.matchesExpr(n.X)
	case *ast.AssignStmt:
		if n == nil || len(n.Rhs) != 1 {
			return false
		}
		return b.kind != BuiltInInteraction && unparen(n.Rhs[0]) == ast.Expr(b.call)
	case *ast.FuncLit:
		return n != nil && b.body != nil && n == b.body
	default:
		return false
	}
}

// matchesExpr reports whether expr is the whole built-in expression.
func (b *builtInCall) matchesExpr(expr ast.Expr) bool {
	expr = unparen(expr)
	if b.kind != BuiltInInteraction {
		return expr == ast.Expr(b.call)
	}
	if expr == ast.Expr(b.binary) {
		return true
	}
	// 1 * sub.Fetch() >> "value"
	if resp, ok := expr.(*ast.BinaryExpr); ok && resp.Op == token.SHR {
		return unparen(resp.X) == ast.Expr(b.binary)
	}
	return false
}

// ParseBuiltInCall classifies call, taking the innermost enclosing binary
// expression into account (needed for `count * target.Method()`).
//
// Returns nil when the call has no recognized shape. No side effects.
func ParseBuiltInCall(call *ast.CallExpr, enclosing *ast.BinaryExpr) BuiltInCall {
	if call == nil {
		return nil
	}

	if enclosing != nil && enclosing.Op == token.MUL && unparen(enclosing.Y) == ast.Expr(call) {
		if _, ok := call.Fun.(*ast.SelectorExpr); ok {
			return &builtInCall{kind: BuiltInInteraction, call: call, binary: enclosing}
		}
	}

	ident, ok := call.Fun.(*ast.Ident)
	if !ok {
		return nil
	}

	switch ident.Name {
	case "with":
		if len(call.Args) == 2 {
			if body, ok := call.Args[1].(*ast.FuncLit); ok {
				return &builtInCall{kind: BuiltInWith, call: call, body: body}
			}
		}
	case "verifyAll":
		if body := soleFuncLit(call); body != nil {
			return &builtInCall{kind: BuiltInVerifyAll, call: call, body: body}
		}
	case "interaction":
		if body := soleFuncLit(call); body != nil {
			return &builtInCall{kind: BuiltInInteractionBlock, call: call, body: body}
		}
	case "thrown":
		if len(call.Args) <= 1 {
			return &builtInCall{kind: BuiltInThrown, call: call}
		}
	case "notThrown":
		if len(call.Args) <= 1 {
			return &builtInCall{kind: BuiltInNotThrown, call: call}
		}
	}

	return nil
}

func soleFuncLit(call *ast.CallExpr) *ast.FuncLit {
	if len(call.Args) != 1 {
		return nil
	}
	body, _ := call.Args[0].(*ast.FuncLit)
	return body
}

// unparen strips any number of enclosing parentheses.
func unparen(expr ast.Expr) ast.Expr {
	for {
		p, ok := expr.(*ast.ParenExpr)
		if !ok {
			return expr
		}
		expr = p.X
	}
}
