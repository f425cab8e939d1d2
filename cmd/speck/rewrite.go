// rewrite.go implements the 'speck rewrite' command.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/urfave/cli.v1"

	"github.com/kolkov/speck/cmd/speck/rewrite"
)

var outputFlag = cli.StringFlag{
	Name:  "output, o",
	Usage: "Directory for rewritten files (default: stdout)",
}

var rewriteCommand = cli.Command{
	Name:      "rewrite",
	Usage:     "Rewrite spec files into plain Go tests",
	ArgsUsage: "files...",
	Flags:     []cli.Flag{outputFlag, verboseFlag, runtimeFlag, specVarFlag, tagFlag},
	Description: `The rewrite command prints the Go code generated for each spec file,
or writes it under the same name into the --output directory.`,
	Action: rewriteAction,
}

// rewriteAction implements the 'speck rewrite' command.
//
// Example:
//
//	speck rewrite stack_test.go
//	speck rewrite -o build/ -v stack_test.go queue_test.go
func rewriteAction(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return errors.New("no spec files given")
	}

	env, err := loadEnv(ctx, ctx.Bool("verbose"))
	if err != nil {
		return err
	}
	opts := env.options(ctx)

	outDir := ctx.String("output")
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	var total rewrite.RewriteStats
	for _, path := range ctx.Args() {
		result, err := rewrite.RewriteFile(path, nil, opts)
		if err != nil {
			return err
		}
		total.Add(result.Stats)

		if outDir == "" {
			fmt.Fprint(ctx.App.Writer, result.Code)
			continue
		}

		outPath := filepath.Join(outDir, filepath.Base(path))
		if err := os.WriteFile(outPath, []byte(result.Code), 0644); err != nil {
			return fmt.Errorf("failed to write rewritten file %s: %w", outPath, err)
		}
		env.report.Infof("Rewrote: %s -> %s", path, outPath)
		env.report.Stats(result.Stats)
	}

	if outDir != "" {
		env.report.Successf("Rewrote %d features in %d files", total.Features, ctx.NArg())
	}
	return nil
}
