package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kolkov/speck/cmd/speck/runtime"
)

// workspace is a temporary directory holding rewritten spec files and the
// overlay that points the go command at them.
type workspace struct {
	// Root directory of workspace
	dir string

	// Directory the rewritten files are written to
	srcDir string
}

// createWorkspace creates a temporary workspace.
func createWorkspace() (*workspace, error) {
	dir, err := os.MkdirTemp("", "speck-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	srcDir := filepath.Join(dir, "src")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create src directory: %w", err)
	}

	return &workspace{
		dir:    dir,
		srcDir: srcDir,
	}, nil
}

// write stores code at relPath below srcDir and returns the absolute path.
// Relative paths keep files of different packages apart.
func (w *workspace) write(relPath, code string) (string, error) {
	outPath := filepath.Join(w.srcDir, relPath)
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", outPath, err)
	}
	if err := os.WriteFile(outPath, []byte(code), 0644); err != nil {
		return "", fmt.Errorf("failed to write rewritten file %s: %w", outPath, err)
	}
	return outPath, nil
}

// writeOverlay stores the overlay in the workspace. An empty overlay is not
// written and yields "".
func (w *workspace) writeOverlay(o *runtime.Overlay) (string, error) {
	if o.Len() == 0 {
		return "", nil
	}
	return o.Write(w.dir)
}

// cleanup removes the temporary workspace.
func (w *workspace) cleanup() {
	if w.dir != "" {
		_ = os.RemoveAll(w.dir) // Best effort cleanup, ignore errors
	}
}
