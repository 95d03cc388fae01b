package pipeline

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/SuadeLabs/rattr/internal/cache"
	"github.com/SuadeLabs/rattr/internal/config"
	"github.com/SuadeLabs/rattr/internal/ledger"
	"github.com/SuadeLabs/rattr/internal/results"
)

type nullSink struct{}

func (nullSink) Emit(ledger.Record) {}

func newRunner(t *testing.T, cfg *config.Config, c *cache.Cache) *Runner {
	t.Helper()
	return &Runner{
		Cfg:   cfg,
		Cache: c,
		Log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func decode(t *testing.T, payload []byte) map[string]*results.FunctionResults {
	t.Helper()
	var out map[string]*results.FunctionResults
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("payload is not valid JSON: %v\n%s", err, payload)
	}
	return out
}

func TestAnalyse(t *testing.T) {
	target := writeFile(t, t.TempDir(), "sales.py", `
def raise_salary(person, amount):
    person.salary += amount
    log(person.name)

def log(message):
    print(message)
`)
	led := ledger.New(nullSink{})
	res, err := newRunner(t, config.Default(), nil).Analyse(target, led)
	if err != nil {
		t.Fatalf("Analyse: %v", err)
	}
	if res.Fatal {
		t.Fatal("unexpected fatal result")
	}

	out := decode(t, res.Payload)
	fn, ok := out["raise_salary"]
	if !ok {
		t.Fatalf("raise_salary missing from output: %s", res.Payload)
	}
	if len(fn.Sets) != 1 || fn.Sets[0] != "person.salary" {
		t.Errorf("sets = %v, want [person.salary]", fn.Sets)
	}
}

func TestAnalyseFollowsImports(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "helper.py", `
def touch(obj):
    obj.seen = True
`)
	target := writeFile(t, dir, "main.py", `
from helper import touch

def run(thing):
    touch(thing)
`)
	led := ledger.New(nullSink{})
	res, err := newRunner(t, config.Default(), nil).Analyse(target, led)
	if err != nil {
		t.Fatalf("Analyse: %v", err)
	}

	out := decode(t, res.Payload)
	fn := out["run"]
	if fn == nil {
		t.Fatalf("run missing from output: %s", res.Payload)
	}
	found := false
	for _, s := range fn.Sets {
		if s == "thing.seen" {
			found = true
		}
	}
	if !found {
		t.Errorf("sets = %v, want thing.seen from followed import", fn.Sets)
	}
}

func TestAnalyseFatal(t *testing.T) {
	target := writeFile(t, t.TempDir(), "broken.py", "def f(:\n")
	led := ledger.New(nullSink{})
	res, err := newRunner(t, config.Default(), nil).Analyse(target, led)
	if err != nil {
		t.Fatalf("Analyse: %v", err)
	}
	if !res.Fatal {
		t.Error("syntax error did not produce a fatal result")
	}
	if res.Payload != nil {
		t.Error("fatal result carries a payload")
	}
}

func TestAnalyseMissingFile(t *testing.T) {
	led := ledger.New(nullSink{})
	_, err := newRunner(t, config.Default(), nil).Analyse(
		filepath.Join(t.TempDir(), "absent.py"), led)
	if err == nil {
		t.Error("missing target did not error")
	}
}

func TestAnalyseCache(t *testing.T) {
	c, err := cache.Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	dir := t.TempDir()
	target := writeFile(t, dir, "a.py", `
def f(x):
    return x.attr
`)
	runner := newRunner(t, config.Default(), c)

	first, err := runner.Analyse(target, ledger.New(nullSink{}))
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Error("first run reported a cache hit")
	}

	second, err := runner.Analyse(target, ledger.New(nullSink{}))
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached {
		t.Error("second run missed the cache")
	}
	if string(first.Payload) != string(second.Payload) {
		t.Error("cached payload differs from fresh payload")
	}

	// Editing the target invalidates the entry.
	writeFile(t, dir, "a.py", `
def f(x):
    return x.other
`)
	third, err := runner.Analyse(target, ledger.New(nullSink{}))
	if err != nil {
		t.Fatal(err)
	}
	if third.Cached {
		t.Error("stale cache entry served after edit")
	}
}

func TestAnalyseBadnessAttribution(t *testing.T) {
	target := writeFile(t, t.TempDir(), "warn.py", `
def f(a):
    return getattr(a, key)
`)
	led := ledger.New(nullSink{})
	res, err := newRunner(t, config.Default(), nil).Analyse(target, led)
	if err != nil {
		t.Fatal(err)
	}
	if res.Badness == 0 {
		t.Error("non-literal getattr produced no badness")
	}
}

func TestAnalyseFatalFromImportFollowing(t *testing.T) {
	target := writeFile(t, t.TempDir(), "main.py", `
import nosuchmodule

def f(a):
    return a.b
`)
	cfg := config.Default()
	cfg.Strict = true
	led := ledger.New(nullSink{})
	led.SetStrict(true)
	res, err := newRunner(t, cfg, nil).Analyse(target, led)
	if err != nil {
		t.Fatalf("Analyse: %v", err)
	}
	if !res.Fatal {
		t.Error("unlocatable import under strict did not produce a fatal result")
	}
	if res.Payload != nil {
		t.Error("fatal result carries a payload")
	}
}
