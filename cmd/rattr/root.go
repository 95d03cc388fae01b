package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/SuadeLabs/rattr/internal/cache"
	"github.com/SuadeLabs/rattr/internal/config"
	"github.com/SuadeLabs/rattr/internal/ledger"
	"github.com/SuadeLabs/rattr/internal/pipeline"
)

// Exit codes. Badness is tallied per run and compared against the
// threshold only after every target finished.
const (
	exitOK            = 0
	exitOverThreshold = 1
	exitFatal         = 2
	exitUsage         = 3
)

type cliOptions struct {
	configPath    string
	followImports int
	excludeImport []string
	exclude       []string
	strict        bool
	threshold     int
	searchPaths   []string
	sitePackages  []string
	output        string
	cachePath     string
	noCache       bool
	verbose       bool
}

func run(args []string) int {
	opts := &cliOptions{}
	exitCode := exitOK

	root := &cobra.Command{
		Use:           "rattr <file>...",
		Short:         "Report the attribute accesses of each function in a Python file",
		Long:          "rattr analyses Python files and reports, per function, the attributes it gets, sets and deletes, with callee accesses folded into callers.",
		Version:       version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, targets []string) error {
			code, err := analyse(cmd, opts, targets)
			exitCode = code
			return err
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.IntVarP(&opts.followImports, "follow-imports", "f", config.FollowLocal,
		"imports to follow: 0 none, 1 project-local, 2 +site-packages, 3 +stdlib")
	flags.StringSliceVar(&opts.excludeImport, "exclude-import", nil,
		"glob of module names to never follow (repeatable)")
	flags.StringSliceVar(&opts.exclude, "exclude", nil,
		"glob of function/class names to omit from results (repeatable)")
	flags.BoolVar(&opts.strict, "strict", false, "escalate errors to fatal")
	flags.IntVarP(&opts.threshold, "threshold", "t", 0,
		"maximum tolerated badness, 0 for unlimited")
	flags.StringSliceVar(&opts.searchPaths, "search-path", nil,
		"additional root to locate project modules (repeatable)")
	flags.StringSliceVar(&opts.sitePackages, "site-packages", nil,
		"site-packages directory for follow level 2 (repeatable)")
	flags.StringVarP(&opts.output, "output", "o", "", "write results to file instead of stdout")
	flags.StringVar(&opts.cachePath, "cache-path", "", "results cache database location")
	flags.BoolVar(&opts.noCache, "no-cache", false, "disable the results cache")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log analysis passes and info records")

	root.AddCommand(newServeCommand(opts))
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rattr:", err)
		if exitCode == exitOK {
			return exitUsage
		}
	}
	return exitCode
}

// buildConfig resolves the effective configuration: file values first,
// changed flags on top.
func buildConfig(cmd *cobra.Command, opts *cliOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("follow-imports") {
		cfg.FollowImports = opts.followImports
	}
	if flags.Changed("exclude-import") {
		cfg.ExcludeImports = append(cfg.ExcludeImports, opts.excludeImport...)
	}
	if flags.Changed("exclude") {
		cfg.Exclude = append(cfg.Exclude, opts.exclude...)
	}
	if flags.Changed("strict") {
		cfg.Strict = opts.strict
	}
	if flags.Changed("threshold") {
		cfg.Threshold = opts.threshold
	}
	if flags.Changed("search-path") {
		cfg.SearchPaths = append(cfg.SearchPaths, opts.searchPaths...)
	}
	if flags.Changed("site-packages") {
		cfg.SitePackages = append(cfg.SitePackages, opts.sitePackages...)
	}
	if flags.Changed("cache-path") {
		cfg.CachePath = opts.cachePath
	}
	if flags.Changed("no-cache") {
		cfg.NoCache = opts.noCache
	}
	if err := cfg.Compile(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newRunner(cfg *config.Config, log *slog.Logger) (*pipeline.Runner, func(), error) {
	runner := &pipeline.Runner{Cfg: cfg, Log: log}
	closeCache := func() {}
	if !cfg.NoCache {
		path := cfg.CachePath
		if path == "" {
			var err error
			path, err = cache.DefaultPath()
			if err != nil {
				return nil, nil, err
			}
		}
		c, err := cache.Open(path)
		if err != nil {
			// Analysis works without the cache; say so and continue.
			log.Warn("cache.open", "err", err)
		} else {
			runner.Cache = c
			closeCache = func() { c.Close() }
		}
	}
	return runner, closeCache, nil
}

func analyse(cmd *cobra.Command, opts *cliOptions, targets []string) (int, error) {
	cfg, err := buildConfig(cmd, opts)
	if err != nil {
		return exitUsage, err
	}
	log := newLogger(opts.verbose)
	slog.SetDefault(log)

	runner, closeCache, err := newRunner(cfg, log)
	if err != nil {
		return exitUsage, err
	}
	defer closeCache()

	var (
		mu       sync.Mutex
		payloads = make(map[string]json.RawMessage, len(targets))
		badness  int
		fatal    bool
	)

	var g errgroup.Group
	for _, target := range targets {
		g.Go(func() error {
			led := ledger.New(ledger.SlogSink{Logger: log})
			led.SetStrict(cfg.Strict)
			res, err := runner.Analyse(target, led)
			if err != nil {
				return fmt.Errorf("%s: %w", target, err)
			}
			mu.Lock()
			defer mu.Unlock()
			badness += res.Badness
			if res.Fatal {
				fatal = true
				return nil
			}
			payloads[target] = json.RawMessage(res.Payload)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return exitUsage, err
	}

	out, err := renderOutput(targets, payloads)
	if err != nil {
		return exitUsage, err
	}
	if err := writeOutput(opts.output, out); err != nil {
		return exitUsage, err
	}

	switch {
	case fatal:
		return exitFatal, nil
	case !withinThreshold(badness, cfg):
		return exitOverThreshold, fmt.Errorf("badness %d exceeds threshold %d", badness, cfg.Threshold)
	default:
		return exitOK, nil
	}
}

func withinThreshold(badness int, cfg *config.Config) bool {
	if cfg.Strict {
		return badness <= 0
	}
	if cfg.Threshold == 0 {
		return true
	}
	return badness <= cfg.Threshold
}

// renderOutput produces the final document: one target emits its results
// directly, several emit an object keyed by target path.
func renderOutput(targets []string, payloads map[string]json.RawMessage) ([]byte, error) {
	if len(targets) == 1 {
		if payload, ok := payloads[targets[0]]; ok {
			return payload, nil
		}
		return []byte("{}\n"), nil
	}
	keys := make([]string, 0, len(payloads))
	for k := range payloads {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	combined := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		combined[k] = payloads[k]
	}
	return json.MarshalIndent(combined, "", "  ")
}

func writeOutput(path string, data []byte) error {
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
