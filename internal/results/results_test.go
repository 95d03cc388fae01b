package results

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/SuadeLabs/rattr/internal/analyser"
	"github.com/SuadeLabs/rattr/internal/config"
	"github.com/SuadeLabs/rattr/internal/ir"
	"github.com/SuadeLabs/rattr/internal/ledger"
	"github.com/SuadeLabs/rattr/internal/simplify"
	"github.com/SuadeLabs/rattr/internal/symbol"
)

type nullSink struct{}

func (nullSink) Emit(ledger.Record) {}

func generate(t *testing.T, src string, cfg *config.Config) FileResults {
	t.Helper()
	led := ledger.New(nullSink{})
	fir, err := analyser.AnalyseFile([]byte(src), "test.py", led, nil, cfg)
	if err != nil {
		t.Fatalf("AnalyseFile: %v", err)
	}
	simplified, err := simplify.New(fir, nil, led).Simplify()
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	return Generate(fir, simplified, cfg)
}

func TestGenerate(t *testing.T) {
	res := generate(t, `
def g(p):
    p.used = 1

def f(x):
    g(x)
`, config.Default())

	f, ok := res["f"]
	if !ok {
		t.Fatalf("no results for f; have %v", res)
	}
	if len(f.Sets) != 1 || f.Sets[0] != "x.used" {
		t.Errorf("f sets = %v, want [x.used]", f.Sets)
	}
	if len(f.Calls) != 1 || f.Calls[0] != "g()" {
		t.Errorf("f calls = %v, want [g()]", f.Calls)
	}
}

func TestGenerateExcludes(t *testing.T) {
	cfg := config.Default()
	cfg.Exclude = []string{"_*"}
	if err := cfg.Compile(); err != nil {
		t.Fatal(err)
	}
	res := generate(t, `
def _hidden(a):
    return a.b

def shown(a):
    return a.c
`, cfg)

	if _, ok := res["_hidden"]; ok {
		t.Error("excluded function present in results")
	}
	if _, ok := res["shown"]; !ok {
		t.Error("shown function missing from results")
	}
}

func TestDeterministicOutput(t *testing.T) {
	src := `
def b(x):
    x.beta = 1
    x.alpha = 2

def a(y):
    y.zed = 3
`
	first, err := generate(t, src, config.Default()).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	second, err := generate(t, src, config.Default()).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("output differs between identical runs")
	}

	var decoded map[string]*FunctionResults
	if err := json.Unmarshal(first, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	bIR := decoded["b"]
	if len(bIR.Sets) != 2 || bIR.Sets[0] != "x.alpha" || bIR.Sets[1] != "x.beta" {
		t.Errorf("sets not sorted: %v", bIR.Sets)
	}
}

func TestEmptySetsRenderAsArrays(t *testing.T) {
	out, err := generate(t, `
def f():
    pass
`, config.Default()).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out, []byte("null")) {
		t.Errorf("empty collections rendered as null: %s", out)
	}
}

func TestSimplifiedOverBase(t *testing.T) {
	led := ledger.New(nullSink{})
	fir, err := analyser.AnalyseFile([]byte(`
def f(a):
    return a.x
`), "test.py", led, nil, config.Default())
	if err != nil {
		t.Fatal(err)
	}
	// No simplified entry: the base IR is used as-is.
	res := Generate(fir, map[symbol.Symbol]*ir.FunctionIR{}, config.Default())
	if _, ok := res["f"]; !ok {
		t.Error("f missing when simplified map is empty")
	}
}
