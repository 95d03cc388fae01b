// Package config holds the resolved analysis configuration: follow-imports
// level, exclusion patterns, strictness and badness threshold.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// Follow-imports levels. Each level includes everything below it.
const (
	FollowNone         = 0 // analyse the target file only
	FollowLocal        = 1 // + project-local modules
	FollowSitePackages = 2 // + pip-installed packages
	FollowStdlib       = 3 // + the standard library
)

// Config is the resolved configuration record consumed by the analysis
// engine. CLI flags override values loaded from a YAML file.
type Config struct {
	FollowImports  int      `yaml:"follow-imports"`
	ExcludeImports []string `yaml:"exclude-imports"`
	Exclude        []string `yaml:"exclude"`
	Strict         bool     `yaml:"strict"`
	Threshold      int      `yaml:"threshold"`
	SearchPaths    []string `yaml:"search-paths"`
	SitePackages   []string `yaml:"site-packages"`
	CachePath      string   `yaml:"cache-path"`
	NoCache        bool     `yaml:"no-cache"`

	excludeImports []glob.Glob
	exclude        []glob.Glob
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		FollowImports: FollowLocal,
	}
}

// Load reads a YAML configuration file into a Config and compiles its
// patterns.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Compile(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Compile validates the follow level and compiles exclusion globs. It must
// be called after any mutation of the pattern lists.
func (c *Config) Compile() error {
	if c.FollowImports < FollowNone || c.FollowImports > FollowStdlib {
		return fmt.Errorf("follow-imports must be 0-3, got %d", c.FollowImports)
	}
	var err error
	if c.excludeImports, err = compileAll(c.ExcludeImports); err != nil {
		return fmt.Errorf("exclude-imports: %w", err)
	}
	if c.exclude, err = compileAll(c.Exclude); err != nil {
		return fmt.Errorf("exclude: %w", err)
	}
	return nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// IsExcludedImport reports whether a module name matches an import
// exclusion pattern.
func (c *Config) IsExcludedImport(module string) bool {
	if module == "" {
		return true
	}
	for _, g := range c.excludeImports {
		if g.Match(module) {
			return true
		}
	}
	return false
}

// IsExcludedName reports whether a symbol name matches a symbol exclusion
// pattern.
func (c *Config) IsExcludedName(name string) bool {
	for _, g := range c.exclude {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Fingerprint returns a stable string covering every field that affects
// analysis results, for cache keying.
func (c *Config) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "follow=%d;strict=%t;", c.FollowImports, c.Strict)
	writeSorted(&b, "xi", c.ExcludeImports)
	writeSorted(&b, "xn", c.Exclude)
	writeSorted(&b, "sp", c.SearchPaths)
	writeSorted(&b, "site", c.SitePackages)
	return b.String()
}

func writeSorted(b *strings.Builder, tag string, items []string) {
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	fmt.Fprintf(b, "%s=%s;", tag, strings.Join(sorted, ","))
}
