// Package pipeline runs the full analysis of one target file: parse,
// analyse, follow imports, simplify, render.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/SuadeLabs/rattr/internal/analyser"
	"github.com/SuadeLabs/rattr/internal/cache"
	"github.com/SuadeLabs/rattr/internal/config"
	"github.com/SuadeLabs/rattr/internal/ledger"
	"github.com/SuadeLabs/rattr/internal/loader"
	"github.com/SuadeLabs/rattr/internal/results"
	"github.com/SuadeLabs/rattr/internal/simplify"
)

// Result is the outcome of analysing one target.
type Result struct {
	File    string
	Payload []byte // JSON results, nil when the file was aborted
	Badness int
	Fatal   bool
	Cached  bool
}

// Runner holds the pieces shared across targets in one invocation.
type Runner struct {
	Cfg   *config.Config
	Cache *cache.Cache // nil disables caching
	Log   *slog.Logger
}

// Analyse runs the pipeline for one file. Diagnostics go to led; the
// returned error reports infrastructure failures only, never analysis
// badness.
func (r *Runner) Analyse(path string, led *ledger.Ledger) (*Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	res := &Result{File: abs}
	restore := led.EnterFile(abs)
	defer restore()

	configHash := cache.ConfigHash(r.Cfg.Fingerprint())
	if r.Cache != nil {
		if payload, ok := r.Cache.Get(abs, configHash); ok {
			r.Log.Debug("cache.hit", "file", abs)
			res.Payload = payload
			res.Cached = true
			return res, nil
		}
	}

	source, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read target: %w", err)
	}

	loc := loader.NewLocator(abs, r.Cfg.SearchPaths, r.Cfg.SitePackages)
	ld := loader.New(r.Cfg, led, loc)

	fir, err := analyser.AnalyseFile(source, abs, led, loc, r.Cfg)
	if err != nil {
		if errors.Is(err, ledger.ErrFatal) {
			res.Fatal = true
			res.Badness = led.Total(abs)
			return res, nil
		}
		return nil, err
	}
	r.Log.Debug("pass.analyse", "file", abs, "functions", len(fir.Functions))

	imports, err := ld.FollowImports(fir)
	if err != nil {
		if errors.Is(err, ledger.ErrFatal) {
			res.Fatal = true
			res.Badness = led.Total(abs)
			return res, nil
		}
		return nil, err
	}
	r.Log.Debug("pass.imports", "file", abs, "modules", len(imports))

	simplified, err := simplify.New(fir, imports, led).Simplify()
	if err != nil {
		if errors.Is(err, ledger.ErrFatal) {
			res.Fatal = true
			res.Badness = led.Total(abs)
			return res, nil
		}
		return nil, err
	}
	r.Log.Debug("pass.simplify", "file", abs)

	payload, err := results.Generate(fir, simplified, r.Cfg).Marshal()
	if err != nil {
		return nil, err
	}
	res.Payload = payload
	res.Badness = led.Total(abs)

	if r.Cache != nil {
		if err := r.Cache.Put(abs, configHash, ld.Paths(), payload); err != nil {
			r.Log.Warn("cache.put", "file", abs, "err", err)
		}
	}
	return res, nil
}
