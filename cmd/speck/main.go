// Package main implements the speck CLI tool.
//
// speck turns block-structured test functions into plain Go tests. A spec
// file is an ordinary _test.go file behind a `//go:build speck` constraint
// whose test functions use labels (given:, when:, then:, expect:, cleanup:)
// to split the feature into blocks. The tool:
//
//  1. Classifies the labelled statements into blocks
//  2. Rewrites conditions and interactions into calls on the speck runtime
//  3. Substitutes the rewritten files with `go test -overlay`
//
// Usage:
//
//	speck test ./...               # Test packages, rewriting their specs
//	speck rewrite stack_test.go    # Print the rewritten file
//	speck blocks stack_test.go     # Show the classified blocks
package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/kolkov/speck/speck"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "YAML configuration file (default: nearest .speck.yaml)",
	}
	noColorFlag = cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable coloured output",
	}
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "speck"
	app.Usage = "block-structured specifications for Go tests"
	app.Version = speck.Version
	app.HideVersion = true
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr
	app.Flags = []cli.Flag{configFlag, noColorFlag}
	app.Commands = []cli.Command{
		testCommand,
		rewriteCommand,
		blocksCommand,
		versionCommand,
	}
	return app
}

var versionCommand = cli.Command{
	Name:  "version",
	Usage: "Show version information",
	Action: func(ctx *cli.Context) error {
		info := speck.GetInfo()
		fmt.Fprintf(ctx.App.Writer, "speck version %s (runtime %s)\n", info.Version, info.ImportPath)
		return nil
	},
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		newReporter(os.Stderr, nil, false).Error(err)
		os.Exit(1)
	}
}
