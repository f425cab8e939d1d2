// Package runtime checks that rewritten specs can link against the speck
// runtime and builds the go command flags that substitute them.
//
// Rewritten files import the runtime package (github.com/kolkov/speck/speck
// by default). The user's module has to require the module that provides it,
// otherwise `go test` fails with an opaque "no required module" error; this
// package reports that up front with the command that fixes it.
package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// ErrNoModule is returned when no go.mod is found above a directory.
var ErrNoModule = errors.New("no go.mod found")

// Module is the part of a go.mod the tool needs.
type Module struct {
	// Path is the module path.
	Path string

	// GoMod is the absolute path of the go.mod file.
	GoMod string

	// Requires lists required module paths.
	Requires []string

	// Replaces maps replaced module paths to their replacement.
	Replaces map[string]string
}

// FindGoMod walks up from startDir looking for a go.mod file.
//
// Returns the path to go.mod, or "" if none is found.
func FindGoMod(startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return goModPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ReadModule parses the go.mod file at goModPath.
func ReadModule(goModPath string) (*Module, error) {
	data, err := os.ReadFile(goModPath)
	if err != nil {
		return nil, err
	}

	f, err := modfile.Parse(goModPath, data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", goModPath, err)
	}
	if f.Module == nil {
		return nil, fmt.Errorf("%s: missing module directive", goModPath)
	}

	mod := &Module{
		Path:     f.Module.Mod.Path,
		GoMod:    goModPath,
		Replaces: make(map[string]string),
	}
	for _, req := range f.Require {
		mod.Requires = append(mod.Requires, req.Mod.Path)
	}
	for _, rep := range f.Replace {
		newPath := rep.New.Path
		if rep.New.Version == "" && isLocalPath(newPath) && !filepath.IsAbs(newPath) {
			newPath = filepath.Join(filepath.Dir(goModPath), newPath)
		}
		mod.Replaces[rep.Old.Path] = newPath
	}
	return mod, nil
}

// Provides reports whether the module itself or one of its requirements
// provides importPath, and returns the providing module path.
func (m *Module) Provides(importPath string) (string, bool) {
	best := ""
	for _, p := range append([]string{m.Path}, m.Requires...) {
		if within(importPath, p) && len(p) > len(best) {
			best = p
		}
	}
	return best, best != ""
}

func within(importPath, modPath string) bool {
	return importPath == modPath || strings.HasPrefix(importPath, modPath+"/")
}

// ValidateRuntimeAvailable checks that the module containing dir can import
// the runtime package at importPath.
//
// Returns:
//   - nil if the module is the runtime's module or requires it
//   - ErrNoModule (wrapped) if dir is not inside a module
//   - an error carrying the `go get` command otherwise
func ValidateRuntimeAvailable(dir, importPath string) error {
	goMod := FindGoMod(dir)
	if goMod == "" {
		return fmt.Errorf("%w in %s or any parent directory", ErrNoModule, dir)
	}

	mod, err := ReadModule(goMod)
	if err != nil {
		return err
	}
	if _, ok := mod.Provides(importPath); ok {
		return nil
	}
	return fmt.Errorf("module %s does not require the speck runtime %s\n\nPlease add it:\n  go get %s",
		mod.Path, importPath, importPath)
}

// Overlay is the JSON file accepted by `go build -overlay`.
type Overlay struct {
	Replace map[string]string
}

// NewOverlay returns an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{Replace: make(map[string]string)}
}

// Add substitutes the file at original with the file at rewritten. Both
// paths are made absolute.
func (o *Overlay) Add(original, rewritten string) error {
	from, err := filepath.Abs(original)
	if err != nil {
		return err
	}
	to, err := filepath.Abs(rewritten)
	if err != nil {
		return err
	}
	o.Replace[from] = to
	return nil
}

// Len returns the number of substituted files.
func (o *Overlay) Len() int {
	return len(o.Replace)
}

// Write stores the overlay as JSON in dir and returns the file path.
func (o *Overlay) Write(dir string) (string, error) {
	data, err := json.MarshalIndent(o, "", "\t")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "overlay.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write overlay: %w", err)
	}
	return path, nil
}

// BuildFlags returns the flags that make the go command use the rewritten
// files. An empty overlayPath yields no flags.
//
// Example:
//
//	flags := BuildFlags("/tmp/speck-test-1/overlay.json")
//	// flags = ["-overlay=/tmp/speck-test-1/overlay.json"]
func BuildFlags(overlayPath string) []string {
	if overlayPath == "" {
		return []string{}
	}
	return []string{"-overlay=" + overlayPath}
}

// isLocalPath checks if a replacement path is a filesystem path rather than
// a module path.
func isLocalPath(path string) bool {
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") {
		return true
	}
	if filepath.IsAbs(path) {
		return true
	}
	// Windows drive letter (e.g., C:\)
	return len(path) >= 2 && path[1] == ':'
}
