// blocks.go implements the 'speck blocks' command.
package main

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"

	"github.com/davecgh/go-spew/spew"
	"gopkg.in/urfave/cli.v1"

	"github.com/kolkov/speck/cmd/speck/rewrite"
)

var blocksCommand = cli.Command{
	Name:      "blocks",
	Usage:     "Show the block structure of spec files",
	ArgsUsage: "files...",
	Description: `The blocks command classifies the labelled statements of every test
function and dumps the resulting blocks without rewriting anything.`,
	Action: blocksAction,
}

// featureSummary is the printable view of a classified test function.
type featureSummary struct {
	Name   string
	File   string
	Blocks []blockSummary
}

type blockSummary struct {
	Kind         string
	Line         int
	Descriptions []string
	Statements   int
}

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	DisableMethods:          true,
}

func blocksAction(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return errors.New("no spec files given")
	}

	var features []featureSummary
	for _, path := range ctx.Args() {
		summaries, err := summarizeFile(path, nil)
		if err != nil {
			return err
		}
		features = append(features, summaries...)
	}

	dumper.Fdump(ctx.App.Writer, features)
	return nil
}

// summarizeFile classifies the features of one file. src follows the
// conventions of rewrite.RewriteFile.
func summarizeFile(path string, src interface{}) ([]featureSummary, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", path, err)
	}

	var summaries []featureSummary
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || !rewrite.IsFeature(fn) {
			continue
		}
		feature, err := rewrite.ParseFeature(fset, fn)
		if err != nil {
			return nil, err
		}

		s := featureSummary{Name: feature.Name(), File: path}
		for _, b := range feature.Blocks {
			s.Blocks = append(s.Blocks, blockSummary{
				Kind:         b.Kind.String(),
				Line:         fset.Position(b.Pos()).Line,
				Descriptions: b.Descriptions,
				Statements:   len(b.Stmts),
			})
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}
