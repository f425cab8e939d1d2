// Package rewrite implements source-level rewriting of block-structured
// specifications into plain Go tests.
//
// A spec file is an ordinary _test.go file guarded by a build constraint
// (//go:build speck) whose test functions use labels to delimit blocks:
//
//	func TestStack(t *testing.T) {
//	given:
//		s := NewStack()
//		sub := &SubscriberMock{}
//		s.Subscribe(sub)
//	when:
//		s.Push(42)
//	then:
//		s.Len() == 1
//		1 * sub.Receive(42)
//	}
//
// Algorithm:
//  1. Parse the file using go/parser and strip the spec build constraint
//  2. Classify each feature body into blocks (blocks.go)
//  3. Rewrite each block with a DeepRewriter driving blockRewriter hooks
//  4. Reassemble the body around the runtime scope calls (feature.go)
//  5. Inject the runtime import and print with go/printer + go/format
//  6. Replace line markers with //line directives so compiler errors,
//     panics and test failures point at the spec source
//
// Output:
//
//	func TestStack(t *testing.T) {
//		_sp := speck.New(t)
//		defer _sp.LeaveScope()
//		s := NewStack()
//		sub := &SubscriberMock{}
//		s.Subscribe(sub)
//		_sp.EnterScope()
//		_sp.Expect(1, sub, "Receive", []any{42}, "1 * sub.Receive(42)", 12)
//		s.Push(42)
//		_sp.LeaveScope()
//		_sp.Verify(s.Len() == 1, "s.Len() == 1", 11)
//	}
//
// Thread Safety: This package is NOT thread-safe. Each call to RewriteFile
// works on its own file set and AST.
package rewrite

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/build/constraint"
	"go/format"
	"go/parser"
	"go/printer"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// RuntimeImportPath is the import path of the runtime package generated
	// code calls into.
	RuntimeImportPath = "github.com/kolkov/speck/speck"

	// RuntimeAlias is the package name generated code uses for the runtime.
	RuntimeAlias = "speck"

	// DefaultSpecVar is the local variable holding the feature's *speck.Spec.
	DefaultSpecVar = "_sp"

	// DefaultBuildTag is the build constraint that keeps spec files out of
	// regular builds.
	DefaultBuildTag = "speck"
)

// Options controls the generated code.
type Options struct {
	ImportPath string // Runtime import path
	Alias      string // Runtime package name in generated code
	SpecVar    string // Name of the *speck.Spec variable
	BuildTag   string // Build constraint stripped from output
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ImportPath: RuntimeImportPath,
		Alias:      RuntimeAlias,
		SpecVar:    DefaultSpecVar,
		BuildTag:   DefaultBuildTag,
	}
}

// withDefaults fills empty fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ImportPath == "" {
		o.ImportPath = d.ImportPath
	}
	if o.Alias == "" {
		o.Alias = d.Alias
	}
	if o.SpecVar == "" {
		o.SpecVar = d.SpecVar
	}
	if o.BuildTag == "" {
		o.BuildTag = d.BuildTag
	}
	return o
}

// RewriteStats tracks what was rewritten in a file.
//
//nolint:revive // RewriteStats is clear and descriptive despite stuttering
type RewriteStats struct {
	Features            int // Test functions with blocks
	Blocks              int // Blocks across all features
	Conditions          int // Implicit conditions turned into Verify calls
	Interactions        int // Interaction declarations turned into Expect calls
	ExceptionConditions int // thrown()/notThrown() conditions
}

// Add accumulates other into s.
func (s *RewriteStats) Add(other RewriteStats) {
	s.Features += other.Features
	s.Blocks += other.Blocks
	s.Conditions += other.Conditions
	s.Interactions += other.Interactions
	s.ExceptionConditions += other.ExceptionConditions
}

// RewriteResult holds the result of rewriting one file.
//
//nolint:revive // RewriteResult is clear and descriptive despite stuttering
type RewriteResult struct {
	Code     string       // Rewritten source code
	Stats    RewriteStats // Rewrite statistics
	Features []string     // Names of the rewritten test functions
}

// RewriteFile rewrites a single spec file into plain Go.
//
// Parameters:
//   - filename: Path to the Go source file (used for error messages)
//   - src: Source code to rewrite: nil (read from filename), []byte or string
//   - opts: Generated code options; empty fields take defaults
//
// Returns:
//   - *RewriteResult: Result containing code and statistics
//   - error: *RewriteError for misuse of blocks, or a wrapped parse error
//
// Example:
//
//	result, err := RewriteFile("stack_spec_test.go", nil, DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("Rewrote %d features\n", result.Stats.Features)
//
// Thread Safety: Safe to call concurrently for different files.
func RewriteFile(filename string, src interface{}, opts Options) (*RewriteResult, error) {
	opts = opts.withDefaults()

	data, err := readSource(filename, src)
	if err != nil {
		return nil, err
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, data, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", filename, err)
	}

	stripBuildConstraint(file, opts.BuildTag)

	result := &RewriteResult{}
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || !IsFeature(fn) {
			continue
		}
		feature, err := ParseFeature(fset, fn)
		if err != nil {
			return nil, err
		}
		if err := rewriteFeature(fset, data, feature, opts, &result.Stats); err != nil {
			return nil, err
		}
		dropComments(file, fn.Body)
		result.Features = append(result.Features, feature.Name())
	}

	if len(result.Features) > 0 {
		injectRuntimeImport(fset, file, opts)
	}

	var buf bytes.Buffer
	buf.WriteString(generatedHeader(filename))
	cfg := &printer.Config{
		Mode:     printer.UseSpaces | printer.TabIndent,
		Tabwidth: 8,
	}
	if err := cfg.Fprint(&buf, fset, file); err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	code, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to format generated code for %s: %w", filename, err)
	}
	result.Code = injectLineDirectives(code, filename)
	return result, nil
}

// IsSpecFile reports whether src carries a build constraint that mentions tag.
// Only the header before the package clause is parsed.
func IsSpecFile(filename string, src interface{}, tag string) (bool, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments|parser.PackageClauseOnly)
	if err != nil {
		return false, fmt.Errorf("failed to parse file %s: %w", filename, err)
	}
	for _, cg := range file.Comments {
		if cg.Pos() > file.Package {
			break
		}
		for _, c := range cg.List {
			if mentionsTag(c.Text, tag) {
				return true, nil
			}
		}
	}
	return false, nil
}

func readSource(filename string, src interface{}) ([]byte, error) {
	switch s := src.(type) {
	case nil:
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filename, err)
		}
		return data, nil
	case []byte:
		return s, nil
	case string:
		return []byte(s), nil
	default:
		return nil, fmt.Errorf("invalid source type %T for %s", src, filename)
	}
}

func generatedHeader(filename string) string {
	return fmt.Sprintf("// Code generated by speck from %s. DO NOT EDIT.\n\n", filepath.Base(filename))
}

// stripBuildConstraint removes build constraint lines mentioning tag from the
// file header.
func stripBuildConstraint(file *ast.File, tag string) {
	kept := file.Comments[:0]
	for _, cg := range file.Comments {
		if cg.Pos() < file.Package {
			list := cg.List[:0]
			for _, c := range cg.List {
				if !mentionsTag(c.Text, tag) {
					list = append(list, c)
				}
			}
			cg.List = list
			if len(list) == 0 {
				continue
			}
		}
		kept = append(kept, cg)
	}
	file.Comments = kept
}

// mentionsTag reports whether line is a build constraint that refers to tag.
func mentionsTag(line, tag string) bool {
	if !constraint.IsGoBuild(line) && !constraint.IsPlusBuild(line) {
		return false
	}
	expr, err := constraint.Parse(line)
	if err != nil {
		return false
	}
	found := false
	expr.Eval(func(t string) bool {
		if t == tag {
			found = true
		}
		return true
	})
	return found
}

// dropComments removes comments inside body. Rewritten statements carry no
// positions, so the printer could not place them sensibly.
func dropComments(file *ast.File, body *ast.BlockStmt) {
	kept := file.Comments[:0]
	for _, cg := range file.Comments {
		if cg.Pos() > body.Lbrace && cg.End() < body.Rbrace {
			continue
		}
		kept = append(kept, cg)
	}
	file.Comments = kept
}

// lineMarkerRE matches a line marker statement inside a printed line.
// go/printer puts small closure bodies on one line, so markers are not
// always alone on theirs.
var lineMarkerRE = regexp.MustCompile(lineMarker + `(\d+);?[ \t]*`)

// injectLineDirectives replaces the line markers left by feature assembly
// with line directives for filename. A marker alone on its line becomes
// `//line filename:N`, which must start at column 1 and applies to the next
// line, so blank lines following it are dropped. A marker within a line
// becomes `/*line filename:N*/`, which applies to the text right after it.
func injectLineDirectives(code []byte, filename string) string {
	lines := strings.Split(string(code), "\n")
	result := make([]string, 0, len(lines))
	afterDirective := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if m := lineMarkerRE.FindStringSubmatch(trimmed); m != nil && m[0] == trimmed {
			result = append(result, fmt.Sprintf("//line %s:%s", filename, m[1]))
			afterDirective = true
			continue
		}
		if afterDirective && trimmed == "" {
			continue
		}
		afterDirective = false
		line = lineMarkerRE.ReplaceAllStringFunc(line, func(marker string) string {
			n := lineMarkerRE.FindStringSubmatch(marker)[1]
			return fmt.Sprintf("/*line %s:%s*/", filename, n)
		})
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}
