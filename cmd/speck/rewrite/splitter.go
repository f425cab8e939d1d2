// Package rewrite - Block splitting.
package rewrite

import (
	"go/ast"
	"go/token"
)

// Visit rewrites every top-level statement of block in place. In outcome
// blocks, statements recognized as interaction declarations are removed from
// the block and appended to InteractionStmts instead.
//
// The split is done in two passes so the statement list is never mutated
// while it is being iterated. Both resulting sequences keep the original
// relative order, and together they hold every statement exactly once.
//
// Origin maps every resulting statement back to the statement it replaced.
//
// On error the block is left unchanged.
func (r *DeepRewriter) Visit(block *Block) error {
	rewritten := make([]ast.Stmt, len(block.Stmts))
	relocate := make([]bool, len(block.Stmts))
	if r.origins == nil {
		r.origins = make(map[ast.Stmt]token.Pos, len(block.Stmts))
	}

	for i, stmt := range block.Stmts {
		r.topLevelStmt = stmt
		repl, err := r.ReplaceStmt(stmt)
		if err != nil {
			r.topLevelStmt = nil
			return err
		}
		rewritten[i] = repl
		r.origins[repl] = stmt.Pos()

		if r.interactionFound && block.IsOutcome() {
			relocate[i] = true
			r.interactionFound = false
		}
	}
	r.topLevelStmt = nil

	remaining := make([]ast.Stmt, 0, len(rewritten))
	for i, stmt := range rewritten {
		if relocate[i] {
			r.interactionStmts = append(r.interactionStmts, stmt)
		} else {
			remaining = append(remaining, stmt)
		}
	}
	block.Stmts = remaining
	return nil
}
