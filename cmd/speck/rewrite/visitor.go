// Package rewrite - Scoped rewriting visitor.
//
// This file implements the traversal skeleton shared by all block rewriters.
// The skeleton owns context bookkeeping only; rewrite policy lives in Hooks.
//
// Context is a strict lexical property of the subtree being visited: every
// dispatch method saves the scope, installs the new value, calls the hook and
// restores the saved scope in a defer, so nothing leaks to siblings even when
// a hook returns early, fails, or panics.
package rewrite

import (
	"go/ast"
	"go/token"

	"golang.org/x/tools/go/ast/astutil"
)

// Hooks are the replaceable rewrite callbacks, one per node kind the
// skeleton tracks. Each hook returns the node that replaces its input
// (the input itself when nothing changes). Returned nodes must be non-nil.
//
// Hooks decide whether and when to descend, normally by calling
// r.WalkChildren on their input. Embed BaseHooks to inherit the default
// behavior for the kinds a rewriter does not care about.
type Hooks interface {
	RewriteExprStmt(r *DeepRewriter, s *ast.ExprStmt) (ast.Stmt, error)
	RewriteBinaryExpr(r *DeepRewriter, e *ast.BinaryExpr) (ast.Expr, error)
	RewriteCallExpr(r *DeepRewriter, e *ast.CallExpr) (ast.Expr, error)
	RewriteFuncLit(r *DeepRewriter, e *ast.FuncLit) (ast.Expr, error)
}

// BaseHooks recurses into children and leaves every node unchanged.
type BaseHooks struct{}

// RewriteExprStmt implements Hooks.
func (BaseHooks) RewriteExprStmt(r *DeepRewriter, s *ast.ExprStmt) (ast.Stmt, error) {
	return s, r.WalkChildren(s)
}

// RewriteBinaryExpr implements Hooks.
func (BaseHooks) RewriteBinaryExpr(r *DeepRewriter, e *ast.BinaryExpr) (ast.Expr, error) {
	return e, r.WalkChildren(e)
}

// RewriteCallExpr implements Hooks.
func (BaseHooks) RewriteCallExpr(r *DeepRewriter, e *ast.CallExpr) (ast.Expr, error) {
	return e, r.WalkChildren(e)
}

// RewriteFuncLit implements Hooks.
func (BaseHooks) RewriteFuncLit(r *DeepRewriter, e *ast.FuncLit) (ast.Expr, error) {
	return e, r.WalkChildren(e)
}

// Scope is the lexically scoped part of the visitor context.
//
// A nil field means "not inside such a node". BuiltIn is never nil; it is
// NullBuiltInCall when no built-in call is active.
type Scope struct {
	ExprStmt *ast.ExprStmt
	Binary   *ast.BinaryExpr
	Call     *ast.CallExpr
	FuncLit  *ast.FuncLit
	BuiltIn  BuiltInCall
}

// DeepRewriter walks statement trees of a block while maintaining Scope,
// dispatching to Hooks at expression statements, binary expressions, calls
// and function literals.
//
// Thread Safety: NOT thread-safe. One rewriter per traversal.
type DeepRewriter struct {
	hooks Hooks
	scope Scope

	// topLevelStmt is the block statement currently being rewritten.
	topLevelStmt ast.Stmt

	// lastBuiltInStmt is the last expression statement that matched the
	// built-in call active when it was visited. Not scoped.
	lastBuiltInStmt *ast.ExprStmt
	lastBuiltIn     BuiltInCall

	// Outcome flags, set by hooks.
	conditionFound     bool
	interactionFound   bool
	exceptionCondition *ast.CallExpr

	interactionStmts []ast.Stmt

	// origins maps rewritten block statements to the position of the
	// statement they replaced.
	origins map[ast.Stmt]token.Pos
}

// NewDeepRewriter creates a rewriter dispatching to hooks.
func NewDeepRewriter(hooks Hooks) *DeepRewriter {
	return &DeepRewriter{
		hooks:       hooks,
		scope:       Scope{BuiltIn: NullBuiltInCall},
		lastBuiltIn: NullBuiltInCall,
	}
}

// Scope returns a copy of the current context.
func (r *DeepRewriter) Scope() Scope {
	return r.scope
}

// TopLevelStmt returns the block statement currently being rewritten.
func (r *DeepRewriter) TopLevelStmt() ast.Stmt {
	return r.topLevelStmt
}

// LastBuiltIn returns the last statement recognized as a whole built-in
// construct, together with its matcher. The call itself is nested inside the
// statement, so this is how hooks recover the full statement.
func (r *DeepRewriter) LastBuiltIn() (*ast.ExprStmt, BuiltInCall) {
	return r.lastBuiltInStmt, r.lastBuiltIn
}

// ConditionFound reports whether an implicit condition was rewritten in the
// current lambda scope.
func (r *DeepRewriter) ConditionFound() bool {
	return r.conditionFound
}

// InteractionFound reports whether the current top-level statement is or
// contains an interaction declaration.
func (r *DeepRewriter) InteractionFound() bool {
	return r.interactionFound
}

// ExceptionConditionFound reports whether an exception condition was recorded.
func (r *DeepRewriter) ExceptionConditionFound() bool {
	return r.exceptionCondition != nil
}

// FoundExceptionCondition returns the recorded exception condition, or nil.
func (r *DeepRewriter) FoundExceptionCondition() *ast.CallExpr {
	return r.exceptionCondition
}

// InteractionStmts returns the statements relocated out of outcome blocks.
func (r *DeepRewriter) InteractionStmts() []ast.Stmt {
	return r.interactionStmts
}

// Origin returns the source position of the block statement stmt was
// rewritten from, or stmt's own position if Visit did not produce it.
func (r *DeepRewriter) Origin(stmt ast.Stmt) token.Pos {
	if pos, ok := r.origins[stmt]; ok {
		return pos
	}
	return stmt.Pos()
}

// MarkCondition records that an implicit condition was rewritten.
func (r *DeepRewriter) MarkCondition() {
	r.conditionFound = true
}

// MarkInteraction records that the current top-level statement declares an
// interaction.
func (r *DeepRewriter) MarkInteraction() {
	r.interactionFound = true
}

// RecordExceptionCondition records call as the exception condition of the
// block. Only one is allowed per block; a second one is rejected.
func (r *DeepRewriter) RecordExceptionCondition(call *ast.CallExpr) error {
	if r.exceptionCondition != nil && r.exceptionCondition != call {
		return errDuplicateExceptionCondition
	}
	r.exceptionCondition = call
	return nil
}

// ReplaceStmt rewrites stmt and returns its replacement.
func (r *DeepRewriter) ReplaceStmt(stmt ast.Stmt) (ast.Stmt, error) {
	if s, ok := stmt.(*ast.ExprStmt); ok {
		return r.visitExprStmt(s)
	}
	if err := r.WalkChildren(stmt); err != nil {
		return nil, err
	}
	return stmt, nil
}

// ReplaceExpr rewrites expr and returns its replacement.
func (r *DeepRewriter) ReplaceExpr(expr ast.Expr) (ast.Expr, error) {
	switch e := expr.(type) {
	case *ast.BinaryExpr:
		return r.visitBinaryExpr(e)
	case *ast.CallExpr:
		return r.visitCallExpr(e)
	case *ast.FuncLit:
		return r.visitFuncLit(e)
	}
	if err := r.WalkChildren(expr); err != nil {
		return nil, err
	}
	return expr, nil
}

// WalkChildren visits the descendants of root, dispatching every tracked
// node kind and replacing it in its parent with the hook's result. Other
// nodes are descended into generically. root itself is not dispatched.
//
// The first hook error stops the walk and is returned.
func (r *DeepRewriter) WalkChildren(root ast.Node) error {
	var err error
	astutil.Apply(root, func(c *astutil.Cursor) bool {
		if err != nil {
			return false
		}
		node := c.Node()
		if node == root {
			return true
		}

		var repl ast.Node
		switch n := node.(type) {
		case *ast.ExprStmt:
			repl, err = r.visitExprStmt(n)
		case *ast.BinaryExpr:
			repl, err = r.visitBinaryExpr(n)
		case *ast.CallExpr:
			repl, err = r.visitCallExpr(n)
		case *ast.FuncLit:
			repl, err = r.visitFuncLit(n)
		default:
			return true
		}

		if err == nil && repl != node {
			c.Replace(repl)
		}
		// The hook already decided how deep to go.
		return false
	}, nil)
	return err
}

// restoreScope is deferred by every dispatch method.
func (r *DeepRewriter) restoreScope(saved Scope) {
	r.scope = saved
}

func (r *DeepRewriter) visitExprStmt(s *ast.ExprStmt) (ast.Stmt, error) {
	defer r.restoreScope(r.scope)
	r.scope.ExprStmt = s

	return r.hooks.RewriteExprStmt(r, s)
}

func (r *DeepRewriter) visitBinaryExpr(e *ast.BinaryExpr) (ast.Expr, error) {
	defer r.restoreScope(r.scope)
	r.scope.Binary = e

	return r.hooks.RewriteBinaryExpr(r, e)
}

func (r *DeepRewriter) visitCallExpr(e *ast.CallExpr) (ast.Expr, error) {
	defer r.restoreScope(r.scope)
	r.scope.Call = e

	// An unrecognized call keeps the enclosing matcher active, so a trailing
	// lambda several calls below its owner is still recognized.
	if builtIn := ParseBuiltInCall(e, r.scope.Binary); builtIn != nil {
		r.scope.BuiltIn = builtIn
		if builtIn.IsMatch(r.scope.ExprStmt) {
			r.lastBuiltInStmt = r.scope.ExprStmt
			r.lastBuiltIn = builtIn
		}
	}

	return r.hooks.RewriteCallExpr(r, e)
}

func (r *DeepRewriter) visitFuncLit(e *ast.FuncLit) (ast.Expr, error) {
	defer r.restoreScope(r.scope)
	r.scope.FuncLit = e

	// Any lambda terminates the condition scope: it may run later or never.
	savedConditionFound := r.conditionFound
	r.conditionFound = false
	defer func() { r.conditionFound = savedConditionFound }()

	// An unrelated lambda terminates the built-in call scope.
	if !r.scope.BuiltIn.IsMatch(e) {
		r.scope.BuiltIn = NullBuiltInCall
	}

	return r.hooks.RewriteFuncLit(r, e)
}
