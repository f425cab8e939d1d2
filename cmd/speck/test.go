// test.go implements the 'speck test' command.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/urfave/cli.v1"

	"github.com/kolkov/speck/cmd/speck/rewrite"
	"github.com/kolkov/speck/cmd/speck/runtime"
)

var testCommand = cli.Command{
	Name:            "test",
	Usage:           "Test packages, rewriting their spec files",
	ArgsUsage:       "[go test flags] [packages]",
	SkipFlagParsing: true,
	Description: `The test command rewrites every spec file of the given packages into a
temporary workspace and runs 'go test -overlay' so the go command compiles
the rewritten files in place of the originals. All arguments are passed to
'go test'.`,
	Action: testAction,
}

// testConfig holds configuration for the test command.
type testConfig struct {
	// Package patterns to test (e.g., "./...", "./internal/...")
	packages []string

	// Test flags to pass to go test (-v, -run, -count, etc.)
	testFlags []string

	// Working directory
	workDir string

	// Verbose output flag (-v)
	verbose bool
}

// testAction implements the 'speck test' command.
//
// Flow:
//  1. Parse arguments (test flags + package patterns)
//  2. Check that the module requires the runtime
//  3. Rewrite spec files into a temporary workspace
//  4. Write the overlay mapping originals to rewritten files
//  5. Call 'go test -overlay' in the working directory
//  6. Forward test output and exit code
//
// Example:
//
//	speck test ./...
//	speck test -v -run=TestStack ./internal/...
func testAction(ctx *cli.Context) error {
	config, err := parseTestArgs(ctx.Args())
	if err != nil {
		return err
	}

	env, err := loadEnv(ctx, config.verbose)
	if err != nil {
		return err
	}
	opts := env.cfg.RewriteOptions()

	if err := runtime.ValidateRuntimeAvailable(config.workDir, opts.ImportPath); err != nil {
		return fmt.Errorf("speck runtime not available: %w", err)
	}

	ws, err := createWorkspace()
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	defer ws.cleanup()

	overlay, err := rewriteSpecSources(config, ws, opts, env.report)
	if err != nil {
		return err
	}
	if overlay.Len() == 0 {
		env.report.Warnf("no spec files tagged %q found, running tests unchanged", opts.BuildTag)
	}

	overlayPath, err := ws.writeOverlay(overlay)
	if err != nil {
		return err
	}

	if code := runTests(config, runtime.BuildFlags(overlayPath), ctx.App.Writer, ctx.App.ErrWriter); code != 0 {
		return cli.NewExitError("", code)
	}
	return nil
}

// parseTestArgs parses command-line arguments for 'speck test'.
//
// The 'go test' command format is:
//
//	go test [build/test flags] [packages] [test binary flags]
//
// Returns testConfig with parsed arguments.
func parseTestArgs(args []string) (*testConfig, error) {
	config := &testConfig{
		packages:  []string{},
		testFlags: []string{},
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	config.workDir = cwd

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// -v is ours too
		if arg == "-v" {
			config.verbose = true
			config.testFlags = append(config.testFlags, arg)
			continue
		}

		if strings.HasPrefix(arg, "-") {
			if arg == "-overlay" || strings.HasPrefix(arg, "-overlay=") {
				return nil, errors.New("-overlay cannot be combined with speck test")
			}
			config.testFlags = append(config.testFlags, arg)

			if testFlagNeedsValue(arg) && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
				config.testFlags = append(config.testFlags, args[i])
			}
			continue
		}

		config.packages = append(config.packages, arg)
	}

	if len(config.packages) == 0 {
		config.packages = []string{"."}
	}

	return config, nil
}

// testFlagNeedsValue returns true if the test flag expects a following value.
func testFlagNeedsValue(flag string) bool {
	// Already has = format (e.g., -run=TestFoo)
	if strings.Contains(flag, "=") {
		return false
	}

	valueFlags := []string{
		"-run", "-skip", "-bench", "-benchtime", "-blockprofile", "-blockprofilerate",
		"-coverprofile", "-covermode", "-coverpkg", "-count", "-cpu", "-cpuprofile",
		"-memprofile", "-memprofilerate", "-mutexprofile", "-mutexprofilefraction",
		"-outputdir", "-parallel", "-timeout", "-trace",
		// Build flags that may appear
		"-ldflags", "-gcflags", "-tags", "-mod", "-modfile", "-exec",
	}

	for _, vf := range valueFlags {
		if flag == vf {
			return true
		}
	}

	return false
}

// rewriteSpecSources rewrites the spec files of the tested packages into the
// workspace and returns the overlay that substitutes them.
func rewriteSpecSources(config *testConfig, ws *workspace, opts rewrite.Options, report *reporter) (*runtime.Overlay, error) {
	dirs, err := resolvePackagePatterns(config.packages, config.workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve packages: %w", err)
	}

	overlay := runtime.NewOverlay()
	var total rewrite.RewriteStats
	for _, dir := range dirs {
		goFiles, err := collectGoFiles(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to collect files from %s: %w", dir, err)
		}

		for _, srcPath := range goFiles {
			src, err := os.ReadFile(srcPath)
			if err != nil {
				return nil, err
			}
			isSpec, err := rewrite.IsSpecFile(srcPath, src, opts.BuildTag)
			if err != nil {
				return nil, err
			}
			if !isSpec {
				continue
			}

			result, err := rewrite.RewriteFile(srcPath, src, opts)
			if err != nil {
				return nil, err
			}
			total.Add(result.Stats)

			relPath, err := filepath.Rel(config.workDir, srcPath)
			if err != nil || strings.HasPrefix(relPath, "..") {
				relPath = filepath.Base(srcPath)
			}
			outPath, err := ws.write(relPath, result.Code)
			if err != nil {
				return nil, err
			}
			if err := overlay.Add(srcPath, outPath); err != nil {
				return nil, err
			}

			report.Infof("Rewrote: %s", relPath)
			report.Stats(result.Stats)
		}
	}

	if overlay.Len() > 0 {
		report.Infof("Rewrote %d features in %d spec files", total.Features, overlay.Len())
	}
	return overlay, nil
}

// resolvePackagePatterns resolves package patterns like "./..." to directories.
func resolvePackagePatterns(patterns []string, workDir string) ([]string, error) {
	var dirs []string
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		// Handle "./..." pattern (recursive)
		if strings.HasSuffix(pattern, "/...") || strings.HasSuffix(pattern, "\\...") {
			baseDir := strings.TrimSuffix(strings.TrimSuffix(pattern, "/..."), "\\...")
			if baseDir == "." || baseDir == "" {
				baseDir = workDir
			} else if !filepath.IsAbs(baseDir) {
				baseDir = filepath.Join(workDir, baseDir)
			}

			err := filepath.WalkDir(baseDir, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					return nil
				}
				// Skip hidden directories, vendor and testdata like the go command
				name := d.Name()
				if path != baseDir && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
					name == "vendor" || name == "testdata") {
					return filepath.SkipDir
				}
				hasGo, _ := hasGoFiles(path)
				if hasGo && !seen[path] {
					dirs = append(dirs, path)
					seen[path] = true
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("failed to walk %s: %w", baseDir, err)
			}
			continue
		}

		// Single directory
		dir := pattern
		if pattern == "." {
			dir = workDir
		} else if !filepath.IsAbs(dir) {
			dir = filepath.Join(workDir, pattern)
		}

		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			// Import paths are left to the go command.
			continue
		}
		if !seen[dir] {
			dirs = append(dirs, dir)
			seen[dir] = true
		}
	}

	return dirs, nil
}

// hasGoFiles checks if a directory contains any .go files.
func hasGoFiles(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".go") {
			return true, nil
		}
	}

	return false, nil
}

// collectGoFiles collects all .go files from a directory (including _test.go).
func collectGoFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var goFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".go") {
			goFiles = append(goFiles, filepath.Join(dir, entry.Name()))
		}
	}

	return goFiles, nil
}

// runTests executes 'go test' in the working directory with the overlay.
func runTests(config *testConfig, buildFlags []string, stdout, stderr io.Writer) int {
	args := []string{"test"}
	args = append(args, config.testFlags...)
	args = append(args, buildFlags...)
	args = append(args, config.packages...)

	cmd := exec.Command("go", args...)
	cmd.Dir = config.workDir
	cmd.Stdin = os.Stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(stderr, "Error executing tests: %v\n", err)
		return 1
	}

	return 0
}
