// Package rewrite - Custom error types for spec rewriting.
//
// This file defines positional errors for the rewriting engine.
// Errors include file position (file:line:column) and optional suggestions.
//
// Example output:
//
//	stack_spec_test.go:42:2: interactions are not allowed in expect blocks
//
//	Suggestion: Split the block into when: and then: blocks
package rewrite

import (
	"errors"
	"fmt"
	"go/token"
)

// errDuplicateExceptionCondition is returned by RecordExceptionCondition when
// a block already has an exception condition. Hooks turn it into a
// RewriteError pointing at the second condition.
var errDuplicateExceptionCondition = errors.New("only one exception condition is allowed per block")

// RewriteError represents a rewrite failure with source position.
//
// Fields:
//   - File: Source file path where error occurred
//   - Line: Line number (1-indexed)
//   - Column: Column number (1-indexed)
//   - Message: Human-readable error description
//   - Suggestion: Optional hint for fixing the error
//
// Example:
//
//	err := &RewriteError{
//	    File:    "stack_spec_test.go",
//	    Line:    18,
//	    Column:  1,
//	    Message: "where: blocks are not supported",
//	}
//	fmt.Println(err) // Output: stack_spec_test.go:18:1: where: blocks are not supported
//
// Thread Safety: Immutable after creation, safe for concurrent use.
type RewriteError struct {
	File       string // Source file path
	Line       int    // Line number (1-indexed)
	Column     int    // Column number (1-indexed)
	Message    string // Error message
	Suggestion string // Optional suggestion for fixing (empty if none)
}

// Error implements the error interface.
//
// Format: file:line:column: message
//
// If Suggestion is non-empty, it's appended after a blank line with a
// "Suggestion: " prefix.
func (e *RewriteError) Error() string {
	result := fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	if e.Suggestion != "" {
		result += fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion)
	}
	return result
}

// NewRewriteError creates an error positioned at pos.
//
// Parameters:
//   - fset: File set containing position information
//   - pos: Token position (from AST node.Pos())
//   - msg: Error message describing what went wrong
//
// Thread Safety: Safe for concurrent use (fset is read-only).
func NewRewriteError(fset *token.FileSet, pos token.Pos, msg string) *RewriteError {
	position := fset.Position(pos)
	return &RewriteError{
		File:    position.Filename,
		Line:    position.Line,
		Column:  position.Column,
		Message: msg,
	}
}

// NewRewriteErrorWithSuggestion creates a positioned error with a suggestion.
//
// Example:
//
//	return NewRewriteErrorWithSuggestion(
//	    fset,
//	    label.Pos(),
//	    "then: must follow when:",
//	    "Use expect: for blocks without a stimulus",
//	)
func NewRewriteErrorWithSuggestion(fset *token.FileSet, pos token.Pos, msg, suggestion string) *RewriteError {
	err := NewRewriteError(fset, pos, msg)
	err.Suggestion = suggestion
	return err
}
