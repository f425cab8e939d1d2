// Package config loads the optional .speck.yaml project configuration.
//
// The file is looked up from the working directory upwards. Every key is
// optional; missing keys keep the defaults of the rewrite package, and
// command-line flags override whatever the file sets.
//
//	runtime:
//	  import_path: github.com/kolkov/speck/speck
//	  alias: speck
//	spec_var: _sp
//	build_tag: speck
//	color: false
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kolkov/speck/cmd/speck/rewrite"
)

// FileName is the name of the configuration file.
const FileName = ".speck.yaml"

// Runtime configures the package generated code imports.
type Runtime struct {
	ImportPath string `yaml:"import_path"`
	Alias      string `yaml:"alias"`
}

// Config is the decoded configuration file.
type Config struct {
	Runtime  Runtime `yaml:"runtime"`
	SpecVar  string  `yaml:"spec_var"`
	BuildTag string  `yaml:"build_tag"`

	// Color forces coloured output on or off. Nil leaves the decision to
	// terminal detection.
	Color *bool `yaml:"color"`

	// Path is the file the configuration was loaded from, empty for defaults.
	Path string `yaml:"-"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	opts := rewrite.DefaultOptions()
	return &Config{
		Runtime: Runtime{
			ImportPath: opts.ImportPath,
			Alias:      opts.Alias,
		},
		SpecVar:  opts.SpecVar,
		BuildTag: opts.BuildTag,
	}
}

// Find returns the path of the nearest configuration file in dir or one of
// its parents, or "" if there is none.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		info, err := os.Stat(candidate)
		switch {
		case err == nil && !info.IsDir():
			return candidate, nil
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return "", err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load reads the configuration file at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes data on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Discover finds and loads the configuration for dir. Defaults are returned
// when no file exists.
func Discover(dir string) (*Config, error) {
	path, err := Find(dir)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

func (c *Config) validate() error {
	if c.SpecVar != "" && !isIdent(c.SpecVar) {
		return fmt.Errorf("spec_var %q is not a Go identifier", c.SpecVar)
	}
	if c.Runtime.Alias != "" && !isIdent(c.Runtime.Alias) {
		return fmt.Errorf("runtime.alias %q is not a Go identifier", c.Runtime.Alias)
	}
	return nil
}

// RewriteOptions returns the rewrite options the configuration selects.
func (c *Config) RewriteOptions() rewrite.Options {
	return rewrite.Options{
		ImportPath: c.Runtime.ImportPath,
		Alias:      c.Runtime.Alias,
		SpecVar:    c.SpecVar,
		BuildTag:   c.BuildTag,
	}
}

func isIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return s != ""
}
