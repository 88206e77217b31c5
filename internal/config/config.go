// Package config loads the daemon configuration from an HCL file.
//
//	listen    = "127.0.0.1:7447"
//	log_level = "info"
//	history   = 64
//
//	max_request_bytes = 1048576
//
//	journal {
//	  backend = "sqlite"
//	  path    = "${config_dir}/.scq/journal.db"
//	}
//
//	scene "lobby" {
//	  path       = "scenes/lobby.yaml"
//	  watch      = true
//	  auto_flush = true
//	  debounce   = "200ms"
//	}
//
// Relative paths resolve against the directory of the config file. The
// variables config_dir and env (the process environment) and the functions
// lower, upper, trimspace and coalesce are available in expressions.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

const (
	DefaultListen          = "127.0.0.1:7447"
	DefaultHistory         = 64
	DefaultMaxRequestBytes = 1 << 20
)

type Config struct {
	Listen   string `hcl:"listen,optional"`
	LogLevel string `hcl:"log_level,optional"`
	History  int    `hcl:"history,optional"`

	// MaxRequestBytes bounds one JSON-RPC request line.
	MaxRequestBytes int `hcl:"max_request_bytes,optional"`

	Journal *JournalBlock `hcl:"journal,block"`
	Scenes  []*SceneBlock `hcl:"scene,block"`
}

type JournalBlock struct {
	Backend string `hcl:"backend,optional"`
	Path    string `hcl:"path,optional"`
}

type SceneBlock struct {
	Name                     string `hcl:"name,label"`
	Path                     string `hcl:"path"`
	Watch                    bool   `hcl:"watch,optional"`
	AutoFlush                bool   `hcl:"auto_flush,optional"`
	Debounce                 string `hcl:"debounce,optional"`
	View                     string `hcl:"view,optional"`
	RespectDisplayAttributes bool   `hcl:"respect_display_attributes,optional"`
}

// DebounceDuration parses Debounce; an empty value yields 0.
func (s *SceneBlock) DebounceDuration() (time.Duration, error) {
	if s == nil || strings.TrimSpace(s.Debounce) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s.Debounce))
	if err != nil {
		return 0, fmt.Errorf("scene %q: invalid debounce: %w", s.Name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("scene %q: debounce must be >= 0", s.Name)
	}
	return d, nil
}

func Default() *Config {
	return &Config{
		Listen:   DefaultListen,
		LogLevel: "info",
		History:  DefaultHistory,

		MaxRequestBytes: DefaultMaxRequestBytes,
	}
}

func newHCLEvalContext(dir string) *hcl.EvalContext {
	env := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = cty.StringVal(v)
	}
	envVal := cty.EmptyObjectVal
	if len(env) > 0 {
		envVal = cty.ObjectVal(env)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"config_dir": cty.StringVal(dir),
			"env":        envVal,
		},
		Functions: map[string]function.Function{
			"lower":     stdlib.LowerFunc,
			"upper":     stdlib.UpperFunc,
			"trimspace": stdlib.TrimSpaceFunc,
			"coalesce":  stdlib.CoalesceFunc,
		},
	}
}

// Load decodes path and fills defaults. Errors carry HCL source positions.
func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)

	var cfg Config
	if err := hclsimple.DecodeFile(abs, newHCLEvalContext(dir), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.finish(dir); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes src as if it were read from filename. Relative paths
// resolve against dir.
func Parse(filename string, src []byte, dir string) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, src, newHCLEvalContext(dir), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.finish(dir); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finish(dir string) error {
	c.Listen = strings.TrimSpace(c.Listen)
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.History < 0 {
		return fmt.Errorf("history must be >= 0")
	}
	if c.History == 0 {
		c.History = DefaultHistory
	}
	if c.MaxRequestBytes < 0 {
		return fmt.Errorf("max_request_bytes must be >= 0")
	}
	if c.MaxRequestBytes == 0 {
		c.MaxRequestBytes = DefaultMaxRequestBytes
	}

	if c.Journal != nil {
		c.Journal.Backend = strings.TrimSpace(c.Journal.Backend)
		c.Journal.Path = resolve(dir, c.Journal.Path)
	}

	seen := map[string]struct{}{}
	for _, s := range c.Scenes {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			return fmt.Errorf("scene name is required")
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate scene %q", s.Name)
		}
		seen[s.Name] = struct{}{}

		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("scene %q: path is required", s.Name)
		}
		s.Path = resolve(dir, s.Path)
		if _, err := s.DebounceDuration(); err != nil {
			return err
		}
	}
	return nil
}

func resolve(dir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}
