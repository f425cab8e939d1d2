// Package rewrite - Block classification.
//
// A feature is a test function whose body is split into blocks by Go labels:
//
//	func TestPush(t *testing.T) {
//	given: "an empty stack"
//		s := NewStack()
//	when:
//		s.Push(1)
//	then:
//		s.Len() == 1
//	}
//
// Statements before the first label form an implicit setup block. A string
// literal directly after a label is the block description, not a statement.
package rewrite

import (
	"fmt"
	"go/ast"
	"go/token"
	"strconv"
	"strings"
)

// BlockKind identifies the role of a block.
type BlockKind int

const (
	// BlockSetup holds fixtures (given:, setup:, or unlabeled leading statements).
	BlockSetup BlockKind = iota
	// BlockExpect holds stimulus and conditions in one block (expect:).
	BlockExpect
	// BlockWhen holds the stimulus (when:).
	BlockWhen
	// BlockThen holds the outcome of the preceding stimulus (then:).
	BlockThen
	// BlockCleanup holds teardown statements (cleanup:).
	BlockCleanup
)

// String returns the label that introduces the block kind.
func (k BlockKind) String() string {
	switch k {
	case BlockSetup:
		return "given"
	case BlockExpect:
		return "expect"
	case BlockWhen:
		return "when"
	case BlockThen:
		return "then"
	case BlockCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// blockLabels maps label names to block kinds. "and" and "where" are handled
// separately.
var blockLabels = map[string]BlockKind{
	"given":   BlockSetup,
	"setup":   BlockSetup,
	"expect":  BlockExpect,
	"when":    BlockWhen,
	"then":    BlockThen,
	"cleanup": BlockCleanup,
}

const (
	labelAnd   = "and"
	labelWhere = "where"
)

// isBlockLabel reports whether name introduces or continues a block.
func isBlockLabel(name string) bool {
	_, ok := blockLabels[name]
	return ok || name == labelAnd || name == labelWhere
}

// Block is an ordered group of statements tagged with a kind.
type Block struct {
	Kind BlockKind

	// Label is the identifier that opened the block, nil for the implicit
	// setup block.
	Label *ast.Ident

	// Descriptions holds the string literals following the block label and
	// any and: continuations.
	Descriptions []string

	Stmts []ast.Stmt
}

// IsOutcome reports whether interaction declarations are split out of the
// block.
func (b *Block) IsOutcome() bool {
	return b.Kind == BlockThen
}

// Pos returns the position of the block label, or of its first statement.
func (b *Block) Pos() token.Pos {
	if b.Label != nil {
		return b.Label.Pos()
	}
	if len(b.Stmts) > 0 {
		return b.Stmts[0].Pos()
	}
	return token.NoPos
}

// Feature is a classified test function.
type Feature struct {
	Decl *ast.FuncDecl

	// TParam is the name of the *testing.T parameter.
	TParam string

	Blocks []*Block
}

// Name returns the test function name.
func (f *Feature) Name() string {
	return f.Decl.Name.Name
}

// IsFeature reports whether decl is a top-level test function whose body uses
// block labels.
func IsFeature(decl *ast.FuncDecl) bool {
	if decl.Recv != nil || decl.Body == nil || !strings.HasPrefix(decl.Name.Name, "Test") {
		return false
	}
	for _, stmt := range decl.Body.List {
		if ls, ok := stmt.(*ast.LabeledStmt); ok && isBlockLabel(ls.Label.Name) {
			return true
		}
	}
	return false
}

// ParseFeature classifies the body of decl into blocks and validates their
// order.
//
// Returns *RewriteError for misplaced or unsupported blocks and for test
// functions without a named *testing.T parameter.
func ParseFeature(fset *token.FileSet, decl *ast.FuncDecl) (*Feature, error) {
	tParam, err := testingParam(fset, decl)
	if err != nil {
		return nil, err
	}

	feature := &Feature{Decl: decl, TParam: tParam}

	var current *Block
	for _, stmt := range decl.Body.List {
		// Consecutive labels nest: `given: when: x` is given{when{x}}.
		opened := false
		for {
			ls, ok := stmt.(*ast.LabeledStmt)
			if !ok || !isBlockLabel(ls.Label.Name) {
				break
			}
			next, err := openBlock(fset, feature, current, ls.Label)
			if err != nil {
				return nil, err
			}
			current = next
			opened = true
			stmt = ls.Stmt
		}

		if _, ok := stmt.(*ast.EmptyStmt); ok {
			continue
		}
		if opened {
			if desc, ok := description(stmt); ok {
				current.Descriptions = append(current.Descriptions, desc)
				continue
			}
		}
		if current == nil {
			current = &Block{Kind: BlockSetup}
			feature.Blocks = append(feature.Blocks, current)
		}
		current.Stmts = append(current.Stmts, stmt)
	}

	if err := validateOrder(fset, feature); err != nil {
		return nil, err
	}
	return feature, nil
}

// openBlock returns the block a label starts. and: continues the current
// block instead of starting a new one.
func openBlock(fset *token.FileSet, feature *Feature, current *Block, label *ast.Ident) (*Block, error) {
	switch label.Name {
	case labelWhere:
		return nil, NewRewriteErrorWithSuggestion(fset, label.Pos(),
			"where: blocks are not supported",
			"Use a table-driven loop with t.Run instead")
	case labelAnd:
		if current == nil {
			return nil, NewRewriteError(fset, label.Pos(), "and: must follow another block")
		}
		return current, nil
	}

	kind := blockLabels[label.Name]
	if kind == BlockSetup && len(feature.Blocks) > 0 {
		return nil, NewRewriteErrorWithSuggestion(fset, label.Pos(),
			fmt.Sprintf("%s: must be the first block", label.Name),
			"Move fixture statements into the first block or use and:")
	}

	block := &Block{Kind: kind, Label: label}
	feature.Blocks = append(feature.Blocks, block)
	return block, nil
}

func validateOrder(fset *token.FileSet, feature *Feature) error {
	var prev *Block
	for _, b := range feature.Blocks {
		if prev != nil && prev.Kind == BlockCleanup && b.Kind != BlockCleanup {
			return NewRewriteError(fset, b.Pos(),
				fmt.Sprintf("%s: cannot follow cleanup:", b.Kind))
		}
		if b.Kind == BlockThen && (prev == nil || (prev.Kind != BlockWhen && prev.Kind != BlockThen)) {
			return NewRewriteErrorWithSuggestion(fset, b.Pos(),
				"then: must follow when:",
				"Use expect: for blocks without a stimulus")
		}
		if prev != nil && prev.Kind == BlockWhen && b.Kind != BlockThen {
			return NewRewriteError(fset, prev.Pos(), "when: must be followed by then:")
		}
		prev = b
	}
	if prev != nil && prev.Kind == BlockWhen {
		return NewRewriteError(fset, prev.Pos(), "when: must be followed by then:")
	}
	return nil
}

// testingParam returns the name of the first parameter, which must be a
// named *testing.T.
func testingParam(fset *token.FileSet, decl *ast.FuncDecl) (string, error) {
	params := decl.Type.Params.List
	if len(params) > 0 && len(params[0].Names) > 0 && isTestingT(params[0].Type) {
		if name := params[0].Names[0].Name; name != "_" {
			return name, nil
		}
	}
	return "", NewRewriteErrorWithSuggestion(fset, decl.Name.Pos(),
		fmt.Sprintf("%s must take a named *testing.T parameter", decl.Name.Name),
		fmt.Sprintf("Declare it as func %s(t *testing.T)", decl.Name.Name))
}

func isTestingT(expr ast.Expr) bool {
	star, ok := expr.(*ast.StarExpr)
	if !ok {
		return false
	}
	sel, ok := star.X.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	pkg, ok := sel.X.(*ast.Ident)
	return ok && pkg.Name == "testing" && sel.Sel.Name == "T"
}

// description returns the value of a string literal statement.
func description(stmt ast.Stmt) (string, bool) {
	es, ok := stmt.(*ast.ExprStmt)
	if !ok {
		return "", false
	}
	lit, ok := es.X.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	s, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", false
	}
	return s, true
}
