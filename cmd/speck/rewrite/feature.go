// Package rewrite - Feature assembly.
//
// After every block has been rewritten, the feature body is rebuilt around
// the runtime scope calls:
//
//	_sp := speck.New(t)
//	defer _sp.LeaveScope()       // verifies interactions declared in setup
//	<setup statements>
//	defer func() { <cleanup> }()
//	_sp.EnterScope()             // per when/then group
//	<interactions relocated from the then blocks>
//	<stimulus>                   // wrapped in _sp.Run(func() {...}) with thrown()
//	_sp.LeaveScope()             // verifies the group's interactions
//	<then statements>
//	<expect statements>          // in place
//
// Every emitted statement is preceded by a line marker carrying the source
// line it stands for; RewriteFile turns markers into //line directives.
package rewrite

import (
	"go/ast"
	"go/token"
	"strconv"
)

// lineMarker prefixes the placeholder statements that mark source lines in
// the assembled body.
const lineMarker = "_speck_line_"

func lineMarkerStmt(line int) ast.Stmt {
	return &ast.ExprStmt{X: ast.NewIdent(lineMarker + strconv.Itoa(line))}
}

// rewrittenBlock is a block after its DeepRewriter has run.
type rewrittenBlock struct {
	*Block
	interactions []ast.Stmt
	exception    bool
}

// rewriteFeature rewrites every block of feature and replaces the function
// body with the assembled result.
func rewriteFeature(fset *token.FileSet, src []byte, feature *Feature, opts Options, stats *RewriteStats) error {
	n := names{specVar: opts.SpecVar, runtime: opts.Alias}

	var local RewriteStats
	lines := make(map[ast.Stmt]int)
	blocks := make([]*rewrittenBlock, 0, len(feature.Blocks))
	for _, b := range feature.Blocks {
		r := NewDeepRewriter(newBlockRewriter(fset, src, b, n, &local))
		if err := r.Visit(b); err != nil {
			return err
		}
		for _, s := range b.Stmts {
			lines[s] = fset.Position(r.Origin(s)).Line
		}
		for _, s := range r.InteractionStmts() {
			lines[s] = fset.Position(r.Origin(s)).Line
		}
		blocks = append(blocks, &rewrittenBlock{
			Block:        b,
			interactions: r.InteractionStmts(),
			exception:    r.ExceptionConditionFound(),
		})
	}

	a := &assembler{names: n, fset: fset, lines: lines}
	body := feature.Decl.Body
	a.prologue(feature.TParam, a.line(body.Lbrace))

	// Cleanup must be registered before any stimulus runs.
	var (
		cleanup     []ast.Stmt
		cleanupLine int
	)
	for _, b := range blocks {
		if b.Kind == BlockCleanup {
			if cleanup == nil {
				cleanupLine = a.line(b.Pos())
			}
			cleanup = append(cleanup, b.Stmts...)
		}
	}

	cleanupDone := false
	for i := 0; i < len(blocks); i++ {
		b := blocks[i]
		if b.Kind != BlockSetup && !cleanupDone {
			a.cleanup(cleanup, cleanupLine)
			cleanupDone = true
		}

		switch b.Kind {
		case BlockSetup, BlockExpect:
			a.emit(b.Stmts...)
		case BlockWhen:
			// Ordering is validated: a when block is followed by one or more
			// then blocks.
			j := i + 1
			for j < len(blocks) && blocks[j].Kind == BlockThen {
				j++
			}
			a.group(b, blocks[i+1:j])
			i = j - 1
		}
	}
	if !cleanupDone {
		a.cleanup(cleanup, cleanupLine)
	}
	// Deferred calls report the closing brace.
	a.mark(a.line(body.Rbrace))

	body.List = a.stmts

	local.Features = 1
	local.Blocks = len(feature.Blocks)
	stats.Add(local)
	return nil
}

// assembler accumulates the rebuilt feature body.
type assembler struct {
	names names
	fset  *token.FileSet
	lines map[ast.Stmt]int // source line of each rewritten block statement
	stmts []ast.Stmt
}

func (a *assembler) line(pos token.Pos) int {
	if !pos.IsValid() {
		return 0
	}
	return a.fset.Position(pos).Line
}

func (a *assembler) mark(line int) {
	if line > 0 {
		a.stmts = append(a.stmts, lineMarkerStmt(line))
	}
}

// emit appends block statements, each marked with its source line.
func (a *assembler) emit(stmts ...ast.Stmt) {
	a.stmts = append(a.stmts, a.mapped(stmts)...)
}

// at appends generated statements attributed to line.
func (a *assembler) at(line int, stmts ...ast.Stmt) {
	for _, s := range stmts {
		a.mark(line)
		a.stmts = append(a.stmts, s)
	}
}

// mapped returns stmts with a line marker before every statement whose
// source line is known.
func (a *assembler) mapped(stmts []ast.Stmt) []ast.Stmt {
	out := make([]ast.Stmt, 0, 2*len(stmts))
	for _, s := range stmts {
		if line := a.lines[s]; line > 0 {
			out = append(out, lineMarkerStmt(line))
		}
		out = append(out, s)
	}
	return out
}

// prologue emits `_sp := speck.New(t)` and `defer _sp.LeaveScope()`.
func (a *assembler) prologue(tParam string, line int) {
	a.at(line,
		&ast.AssignStmt{
			Lhs: []ast.Expr{ast.NewIdent(a.names.specVar)},
			Tok: token.DEFINE,
			Rhs: []ast.Expr{&ast.CallExpr{
				Fun:  &ast.SelectorExpr{X: ast.NewIdent(a.names.runtime), Sel: ast.NewIdent("New")},
				Args: []ast.Expr{ast.NewIdent(tParam)},
			}},
		},
		&ast.DeferStmt{Call: a.specCall("LeaveScope")},
	)
}

func (a *assembler) cleanup(stmts []ast.Stmt, line int) {
	if len(stmts) == 0 {
		return
	}
	a.at(line, &ast.DeferStmt{Call: &ast.CallExpr{
		Fun: &ast.FuncLit{
			Type: &ast.FuncType{Params: &ast.FieldList{}},
			Body: &ast.BlockStmt{List: a.mapped(stmts)},
		},
	}})
}

// group emits one when block and the then blocks that follow it.
func (a *assembler) group(when *rewrittenBlock, thens []*rewrittenBlock) {
	whenLine := a.line(when.Pos())
	leaveLine := whenLine
	if len(thens) > 0 {
		leaveLine = a.line(thens[0].Pos())
	}

	a.at(whenLine, &ast.ExprStmt{X: a.specCall("EnterScope")})

	exception := false
	for _, t := range thens {
		a.emit(t.interactions...)
		exception = exception || t.exception
	}
	if exception {
		a.at(whenLine, &ast.ExprStmt{X: a.specCall("Run", &ast.FuncLit{
			Type: &ast.FuncType{Params: &ast.FieldList{}},
			Body: &ast.BlockStmt{List: a.mapped(when.Stmts)},
		})})
	} else {
		a.emit(when.Stmts...)
	}

	a.at(leaveLine, &ast.ExprStmt{X: a.specCall("LeaveScope")})

	for _, t := range thens {
		a.emit(t.Stmts...)
	}
}

func (a *assembler) specCall(method string, args ...ast.Expr) *ast.CallExpr {
	return &ast.CallExpr{
		Fun:  &ast.SelectorExpr{X: ast.NewIdent(a.names.specVar), Sel: ast.NewIdent(method)},
		Args: args,
	}
}
