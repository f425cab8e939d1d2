package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/kolkov/speck/cmd/speck/rewrite"
	"github.com/kolkov/speck/internal/config"
)

// reporter prints progress and errors. Informational messages only appear
// in verbose mode.
type reporter struct {
	err     io.Writer
	verbose bool

	ok   *color.Color
	warn *color.Color
	fail *color.Color
	dim  *color.Color
}

func newReporter(errw io.Writer, cfg *config.Config, noColor bool) *reporter {
	r := &reporter{
		err:  errw,
		ok:   color.New(color.FgGreen),
		warn: color.New(color.FgYellow),
		fail: color.New(color.FgRed, color.Bold),
		dim:  color.New(color.Faint),
	}
	enabled := useColor(errw, cfg, noColor)
	for _, c := range []*color.Color{r.ok, r.warn, r.fail, r.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// useColor decides whether w gets escape sequences. A flag wins over the
// configuration, which wins over terminal detection.
func useColor(w io.Writer, cfg *config.Config, noColor bool) bool {
	if noColor {
		return false
	}
	if cfg != nil && cfg.Color != nil {
		return *cfg.Color
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Infof prints a progress line in verbose mode.
func (r *reporter) Infof(format string, args ...interface{}) {
	if r.verbose {
		fmt.Fprintf(r.err, format+"\n", args...)
	}
}

// Successf prints a result line.
func (r *reporter) Successf(format string, args ...interface{}) {
	fmt.Fprintln(r.err, r.ok.Sprintf(format, args...))
}

// Warnf prints a warning.
func (r *reporter) Warnf(format string, args ...interface{}) {
	fmt.Fprintf(r.err, "%s %s\n", r.warn.Sprint("Warning:"), fmt.Sprintf(format, args...))
}

// Error prints err. The suggestion of a rewrite error is dimmed.
func (r *reporter) Error(err error) {
	msg := err.Error()
	var rerr *rewrite.RewriteError
	if errors.As(err, &rerr) && rerr.Suggestion != "" {
		hint := "Suggestion: " + rerr.Suggestion
		msg = strings.Replace(msg, hint, r.dim.Sprint(hint), 1)
	}
	fmt.Fprintf(r.err, "%s %s\n", r.fail.Sprint("Error:"), msg)
}

// Stats prints rewrite statistics in verbose mode.
func (r *reporter) Stats(stats rewrite.RewriteStats) {
	if !r.verbose {
		return
	}
	r.Infof("  - %d features, %d blocks", stats.Features, stats.Blocks)
	r.Infof("  - %d conditions, %d interactions, %d exception conditions",
		stats.Conditions, stats.Interactions, stats.ExceptionConditions)
}
