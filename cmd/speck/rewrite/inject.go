// Package rewrite - Import injection functionality.
package rewrite

import (
	"go/ast"
	"go/token"
	"path"

	"golang.org/x/tools/go/ast/astutil"
)

// injectRuntimeImport adds the runtime import to file.
//
// The import is unnamed when the alias equals the last element of the import
// path and named otherwise:
//
//	import "github.com/kolkov/speck/speck"
//	import sp "github.com/kolkov/speck/speck"   // Alias: "sp"
//
// Existing imports of the runtime are left alone. Returns false when nothing
// was added.
//
// Thread Safety: NOT thread-safe (modifies AST in place).
func injectRuntimeImport(fset *token.FileSet, file *ast.File, opts Options) bool {
	if opts.Alias == path.Base(opts.ImportPath) {
		return astutil.AddImport(fset, file, opts.ImportPath)
	}
	return astutil.AddNamedImport(fset, file, opts.Alias, opts.ImportPath)
}
