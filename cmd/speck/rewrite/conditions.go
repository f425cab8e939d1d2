// Package rewrite - Condition and interaction rewriting.
//
// blockRewriter is the Hooks implementation used for feature blocks. It turns
// the DSL shapes recognized by the DeepRewriter into calls on the runtime
// spec variable:
//
//	s.Len() == 1                 =>  _sp.Verify(s.Len() == 1, "s.Len() == 1", 12)
//	1 * sub.Receive("hi")        =>  _sp.Expect(1, sub, "Receive", []any{"hi"}, "1 * sub.Receive(\"hi\")", 13)
//	_ * sub.Fetch() >> "v"       =>  _sp.Expect(speck.AnyTimes, sub, "Fetch", []any{}, ..., 14).Respond("v")
//	with(p, func(p *P) { ... })  =>  speck.With(p, func(p *P) { ... })
//	verifyAll(func() { ... })    =>  _sp.VerifyAll(func() { ... })
//	interaction(func() { ... })  =>  _sp.Interaction(func() { ... })
//	thrown(ErrEmpty)             =>  _sp.Thrown(ErrEmpty, "thrown(ErrEmpty)", 15)
package rewrite

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/printer"
	"go/token"
	"strconv"
)

// blockRewriter rewrites the statements of one block.
type blockRewriter struct {
	BaseHooks

	fset  *token.FileSet
	src   []byte
	block *Block
	names names
	stats *RewriteStats
}

// names holds the identifiers generated code refers to.
type names struct {
	// specVar is the local variable holding the *speck.Spec.
	specVar string
	// runtime is the package name the runtime is imported as.
	runtime string
}

func newBlockRewriter(fset *token.FileSet, src []byte, block *Block, n names, stats *RewriteStats) *blockRewriter {
	return &blockRewriter{fset: fset, src: src, block: block, names: n, stats: stats}
}

// RewriteExprStmt turns interaction declarations and implicit conditions into
// runtime calls.
func (h *blockRewriter) RewriteExprStmt(r *DeepRewriter, s *ast.ExprStmt) (ast.Stmt, error) {
	// Source text and position are taken before children are rewritten.
	text := h.source(s.X)
	line := h.line(s.X)

	if err := r.WalkChildren(s); err != nil {
		return nil, err
	}

	if stmt, builtIn := r.LastBuiltIn(); stmt == s && builtIn.Kind() == BuiltInInteraction {
		return h.rewriteInteraction(r, s, text, line)
	}

	if h.isConditionStmt(r, s) && isConditionExpr(s.X) {
		r.MarkCondition()
		h.stats.Conditions++
		return &ast.ExprStmt{X: h.specCall("Verify", s.X, stringLit(text), intLit(line))}, nil
	}

	return s, nil
}

// RewriteCallExpr rewrites the built-in call currently active, if e is it.
func (h *blockRewriter) RewriteCallExpr(r *DeepRewriter, e *ast.CallExpr) (ast.Expr, error) {
	text := h.source(e)
	line := h.line(e)

	if err := r.WalkChildren(e); err != nil {
		return nil, err
	}

	builtIn := r.Scope().BuiltIn
	if builtIn.Call() != e {
		return e, nil
	}

	if builtIn.Kind().IsExceptionCondition() {
		return h.rewriteExceptionCondition(r, e, builtIn.Kind(), text, line)
	}

	switch builtIn.Kind() {
	case BuiltInWith:
		return h.runtimeCall("With", e.Args...), nil

	case BuiltInVerifyAll:
		return h.specCall("VerifyAll", e.Args...), nil

	case BuiltInInteractionBlock:
		if err := h.checkInteractionAllowed(e); err != nil {
			return nil, err
		}
		r.MarkInteraction()
		return h.specCall("Interaction", e.Args...), nil
	}

	return e, nil
}

// isConditionStmt reports whether s sits where implicit conditions are
// recognized: at the top level of a then: or expect: block, or directly in
// the body of a with/verifyAll lambda.
func (h *blockRewriter) isConditionStmt(r *DeepRewriter, s *ast.ExprStmt) bool {
	scope := r.Scope()
	if scope.BuiltIn.Kind().IsConditionBlock() {
		return scope.FuncLit != nil && containsStmt(scope.FuncLit.Body.List, s)
	}
	if s != r.TopLevelStmt() {
		return false
	}
	return h.block.Kind == BlockThen || h.block.Kind == BlockExpect
}

func (h *blockRewriter) checkInteractionAllowed(n ast.Node) error {
	switch h.block.Kind {
	case BlockExpect:
		return NewRewriteErrorWithSuggestion(h.fset, n.Pos(),
			"interactions are not allowed in expect blocks",
			"Split the block into when: and then: blocks")
	case BlockCleanup:
		return NewRewriteError(h.fset, n.Pos(), "interactions are not allowed in cleanup blocks")
	}
	return nil
}

// rewriteInteraction turns `count * target.Method(args) [>> response]` into a
// registration call.
func (h *blockRewriter) rewriteInteraction(r *DeepRewriter, s *ast.ExprStmt, text string, line int) (ast.Stmt, error) {
	if err := h.checkInteractionAllowed(s); err != nil {
		return nil, err
	}

	expr := unparen(s.X)
	var response ast.Expr
	if resp, ok := expr.(*ast.BinaryExpr); ok && resp.Op == token.SHR {
		response = resp.Y
		expr = unparen(resp.X)
	}

	// The matcher guarantees this shape.
	bin := expr.(*ast.BinaryExpr)
	call := unparen(bin.Y).(*ast.CallExpr)
	sel := call.Fun.(*ast.SelectorExpr)

	if call.Ellipsis.IsValid() {
		return nil, NewRewriteErrorWithSuggestion(h.fset, call.Ellipsis,
			"spread arguments are not supported in interactions",
			"List the expected arguments explicitly")
	}

	count := bin.X
	if isBlank(count) {
		count = h.runtimeSelector("AnyTimes")
	}

	args := make([]ast.Expr, len(call.Args))
	for i, arg := range call.Args {
		if isBlank(arg) {
			args[i] = h.runtimeSelector("Anything")
		} else {
			args[i] = arg
		}
	}

	expect := h.specCall("Expect",
		count,
		sel.X,
		stringLit(sel.Sel.Name),
		&ast.CompositeLit{Type: &ast.ArrayType{Elt: ast.NewIdent("any")}, Elts: args},
		stringLit(text),
		intLit(line),
	)
	if response != nil {
		expect = &ast.CallExpr{
			Fun:  &ast.SelectorExpr{X: expect, Sel: ast.NewIdent("Respond")},
			Args: []ast.Expr{response},
		}
	}

	r.MarkInteraction()
	h.stats.Interactions++
	return &ast.ExprStmt{X: expect}, nil
}

func (h *blockRewriter) rewriteExceptionCondition(r *DeepRewriter, e *ast.CallExpr, kind BuiltInKind, text string, line int) (ast.Expr, error) {
	if h.block.Kind != BlockThen {
		return nil, NewRewriteErrorWithSuggestion(h.fset, e.Pos(),
			fmt.Sprintf("%s() is only allowed in then blocks", kind),
			"Move the exception condition into the then: block following the when: block")
	}
	if err := r.RecordExceptionCondition(e); err != nil {
		if errors.Is(err, errDuplicateExceptionCondition) {
			first := h.fset.Position(r.FoundExceptionCondition().Pos())
			return nil, NewRewriteErrorWithSuggestion(h.fset, e.Pos(), err.Error(),
				fmt.Sprintf("Remove this condition or the one at line %d", first.Line))
		}
		return nil, err
	}
	h.stats.ExceptionConditions++

	var target ast.Expr = ast.NewIdent("nil")
	if len(e.Args) == 1 {
		target = e.Args[0]
	}
	method := "Thrown"
	if kind == BuiltInNotThrown {
		method = "NotThrown"
	}
	return h.specCall(method, target, stringLit(text), intLit(line)), nil
}

// specCall builds `<specVar>.<method>(args...)`.
func (h *blockRewriter) specCall(method string, args ...ast.Expr) *ast.CallExpr {
	return &ast.CallExpr{
		Fun:  &ast.SelectorExpr{X: ast.NewIdent(h.names.specVar), Sel: ast.NewIdent(method)},
		Args: args,
	}
}

// runtimeCall builds `<runtime>.<fn>(args...)`.
func (h *blockRewriter) runtimeCall(fn string, args ...ast.Expr) *ast.CallExpr {
	return &ast.CallExpr{Fun: h.runtimeSelector(fn), Args: args}
}

func (h *blockRewriter) runtimeSelector(name string) *ast.SelectorExpr {
	return &ast.SelectorExpr{X: ast.NewIdent(h.names.runtime), Sel: ast.NewIdent(name)}
}

// source returns the original text of n.
func (h *blockRewriter) source(n ast.Node) string {
	if file := h.fset.File(n.Pos()); file != nil && h.src != nil {
		start, end := file.Offset(n.Pos()), file.Offset(n.End())
		if start >= 0 && end <= len(h.src) && start <= end {
			return string(h.src[start:end])
		}
	}
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, h.fset, n); err != nil {
		return ""
	}
	return buf.String()
}

func (h *blockRewriter) line(n ast.Node) int {
	return h.fset.Position(n.Pos()).Line
}

// isConditionExpr reports whether expr has a shape that can only be meant as
// a condition. Plain calls are excluded: they are usually side effects.
func isConditionExpr(expr ast.Expr) bool {
	switch e := expr.(type) {
	case *ast.ParenExpr:
		return isConditionExpr(e.X)
	case *ast.BinaryExpr:
		switch e.Op {
		case token.EQL, token.NEQ, token.LSS, token.GTR, token.LEQ, token.GEQ, token.LAND, token.LOR:
			return true
		}
		return false
	case *ast.UnaryExpr:
		return e.Op == token.NOT
	case *ast.Ident:
		return e.Name != "_"
	case *ast.SelectorExpr:
		return true
	default:
		return false
	}
}

func isBlank(expr ast.Expr) bool {
	id, ok := expr.(*ast.Ident)
	return ok && id.Name == "_"
}

func containsStmt(list []ast.Stmt, s ast.Stmt) bool {
	for _, stmt := range list {
		if stmt == s {
			return true
		}
	}
	return false
}

func stringLit(s string) *ast.BasicLit {
	return &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(s)}
}

func intLit(n int) *ast.BasicLit {
	return &ast.BasicLit{Kind: token.INT, Value: strconv.Itoa(n)}
}
