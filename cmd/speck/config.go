package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/kolkov/speck/cmd/speck/rewrite"
	"github.com/kolkov/speck/internal/config"
)

var (
	runtimeFlag = cli.StringFlag{
		Name:  "runtime",
		Usage: "Import path of the speck runtime package",
	}
	specVarFlag = cli.StringFlag{
		Name:  "spec-var",
		Usage: "Name of the generated *speck.Spec variable",
	}
	tagFlag = cli.StringFlag{
		Name:  "tag",
		Usage: "Build constraint that marks spec files",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose, v",
		Usage: "Print per-file details",
	}
)

// environment is the configuration shared by all commands.
type environment struct {
	cfg    *config.Config
	report *reporter
}

// loadEnv loads the configuration named by --config, or the nearest
// .speck.yaml above the working directory.
func loadEnv(ctx *cli.Context, verbose bool) (*environment, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := ctx.GlobalString(configFlag.Name); path != "" {
		cfg, err = config.Load(path)
	} else {
		var cwd string
		cwd, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg, err = config.Discover(cwd)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	report := newReporter(ctx.App.ErrWriter, cfg, ctx.GlobalBool(noColorFlag.Name))
	report.verbose = verbose
	if cfg.Path != "" {
		report.Infof("Configuration: %s", cfg.Path)
	}
	return &environment{cfg: cfg, report: report}, nil
}

// options returns the configured rewrite options with command flags applied.
func (e *environment) options(ctx *cli.Context) rewrite.Options {
	opts := e.cfg.RewriteOptions()
	if v := ctx.String(runtimeFlag.Name); v != "" {
		opts.ImportPath = v
	}
	if v := ctx.String(specVarFlag.Name); v != "" {
		opts.SpecVar = v
	}
	if v := ctx.String(tagFlag.Name); v != "" {
		opts.BuildTag = v
	}
	return opts
}
