package analyser

import (
	"testing"

	"github.com/SuadeLabs/rattr/internal/config"
	"github.com/SuadeLabs/rattr/internal/ir"
	"github.com/SuadeLabs/rattr/internal/ledger"
)

type nullSink struct{}

func (nullSink) Emit(ledger.Record) {}

// analyse runs the file analyser over src and returns the IRs keyed by
// symbol name.
func analyse(t *testing.T, src string) (map[string]*ir.FunctionIR, *ledger.Ledger) {
	t.Helper()
	led := ledger.New(nullSink{})
	fir, err := AnalyseFile([]byte(src), "test.py", led, nil, config.Default())
	if err != nil {
		t.Fatalf("AnalyseFile: %v", err)
	}
	out := make(map[string]*ir.FunctionIR, len(fir.Functions))
	for sym, fnIR := range fir.Functions {
		out[sym.SymbolName()] = fnIR
	}
	return out, led
}

func irOf(t *testing.T, irs map[string]*ir.FunctionIR, name string) *ir.FunctionIR {
	t.Helper()
	fnIR, ok := irs[name]
	if !ok {
		t.Fatalf("no IR for %q; have %v", name, keys(irs))
	}
	return fnIR
}

func keys(m map[string]*ir.FunctionIR) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func wantNames(t *testing.T, set ir.NameSet, want ...string) {
	t.Helper()
	for _, name := range want {
		if !set.Has(name) {
			t.Errorf("missing %q in %v", name, setNames(set))
		}
	}
	if len(set) != len(want) {
		t.Errorf("set = %v, want exactly %v", setNames(set), want)
	}
}

func setNames(set ir.NameSet) []string {
	out := make([]string, 0, len(set))
	for _, n := range set.Sorted() {
		out = append(out, n.Name)
	}
	return out
}

func TestAttributeGets(t *testing.T) {
	irs, _ := analyse(t, `
def ratio(person):
    return person.sales / person.salary
`)
	fnIR := irOf(t, irs, "ratio")
	wantNames(t, fnIR.Gets, "person.sales", "person.salary")
	wantNames(t, fnIR.Sets)
}

func TestAssignmentTargets(t *testing.T) {
	irs, _ := analyse(t, `
def f(a):
    a.b = 1
    x = a
    x.c[0] = 2
`)
	fnIR := irOf(t, irs, "f")
	wantNames(t, fnIR.Sets, "a.b", "x", "x.c[]")
	wantNames(t, fnIR.Gets, "a")
}

func TestAugmentedAssignmentSetsOnly(t *testing.T) {
	irs, _ := analyse(t, `
def f(a, b):
    a.total += b.count
`)
	fnIR := irOf(t, irs, "f")
	wantNames(t, fnIR.Sets, "a.total")
	wantNames(t, fnIR.Gets, "b.count")
}

func TestDelStatement(t *testing.T) {
	irs, _ := analyse(t, `
def f(a):
    del a.stale
`)
	fnIR := irOf(t, irs, "f")
	wantNames(t, fnIR.Dels, "a.stale")
}

func TestSyntheticNames(t *testing.T) {
	irs, _ := analyse(t, `
def f(a, b):
    return (a + b).attr
`)
	fnIR := irOf(t, irs, "f")
	wantNames(t, fnIR.Gets, "@BinaryOp.attr")
}

func TestAttrBuiltinFolding(t *testing.T) {
	irs, _ := analyse(t, `
def f(a, v):
    g = getattr(a, "b")
    setattr(a, "c", v)
    delattr(a, "d")
    return hasattr(a.sub, "e")
`)
	fnIR := irOf(t, irs, "f")
	wantNames(t, fnIR.Gets, "a.b", "a.sub.e", "v")
	wantNames(t, fnIR.Sets, "a.c", "g")
	wantNames(t, fnIR.Dels, "a.d")
	if len(fnIR.Calls) != 0 {
		t.Errorf("attr builtins recorded calls: %v", fnIR.Calls)
	}
}

func TestNestedGetattrFolding(t *testing.T) {
	irs, _ := analyse(t, `
def f(a):
    return getattr(getattr(a, "b"), "c")
`)
	fnIR := irOf(t, irs, "f")
	if !fnIR.Gets.Has("a.b.c") {
		t.Errorf("gets = %v, want a.b.c present", setNames(fnIR.Gets))
	}
}

func TestNonLiteralGetattr(t *testing.T) {
	irs, led := analyse(t, `
def f(a, name):
    return getattr(a, name)
`)
	fnIR := irOf(t, irs, "f")
	if !fnIR.Gets.Has("a.<name>") {
		t.Errorf("gets = %v, want a.<name> present", setNames(fnIR.Gets))
	}
	if led.Total("test.py") == 0 {
		t.Error("non-literal getattr recorded no badness")
	}
}

func TestCallsRecorded(t *testing.T) {
	irs, _ := analyse(t, `
def g(p):
    return p.attr

def f(x):
    return g(x)
`)
	fnIR := irOf(t, irs, "f")
	if len(fnIR.Calls) != 1 {
		t.Fatalf("calls = %v, want one", fnIR.Calls)
	}
	call := fnIR.Calls[0]
	if call.Name != "g()" {
		t.Errorf("call name = %q, want g()", call.Name)
	}
	if len(call.Args.Args) != 1 || call.Args.Args[0] != "x" {
		t.Errorf("call args = %v, want [x]", call.Args.Args)
	}
	if call.Target == nil {
		t.Error("call target unresolved")
	}
}

func TestMethodCallGetsReceiverChain(t *testing.T) {
	irs, _ := analyse(t, `
def f(conn):
    conn.session.commit()
`)
	fnIR := irOf(t, irs, "f")
	if !fnIR.Gets.Has("conn.session.commit") {
		t.Errorf("gets = %v, want receiver chain", setNames(fnIR.Gets))
	}
	if len(fnIR.Calls) != 1 || fnIR.Calls[0].Name != "conn.session.commit()" {
		t.Errorf("calls = %v, want conn.session.commit()", fnIR.Calls)
	}
}

func TestKeywordArguments(t *testing.T) {
	irs, _ := analyse(t, `
def g(a, b):
    pass

def f(x, y):
    g(x, b=y.field)
`)
	fnIR := irOf(t, irs, "f")
	call := fnIR.Calls[0]
	if call.Args.Kwargs["b"] != "y.field" {
		t.Errorf("kwargs = %v, want b=y.field", call.Args.Kwargs)
	}
}

func TestClassInstantiationBindsTarget(t *testing.T) {
	irs, _ := analyse(t, `
class Point:
    def __init__(self, x):
        self.x = x

def f(v):
    p = Point(v)
`)
	fnIR := irOf(t, irs, "f")
	if !fnIR.Sets.Has("p") {
		t.Errorf("sets = %v, want p", setNames(fnIR.Sets))
	}
	if len(fnIR.Calls) != 1 {
		t.Fatalf("calls = %v, want one", fnIR.Calls)
	}
	call := fnIR.Calls[0]
	if call.Name != "Point()" {
		t.Errorf("call name = %q, want Point()", call.Name)
	}
	if len(call.Args.Args) != 2 || call.Args.Args[0] != "p" || call.Args.Args[1] != "v" {
		t.Errorf("args = %v, want [p v]", call.Args.Args)
	}

	initIR := irOf(t, irs, "Point")
	wantNames(t, initIR.Sets, "self.x")
	wantNames(t, initIR.Gets, "x")
}

func TestReturnedInstanceBindsReturnValue(t *testing.T) {
	irs, _ := analyse(t, `
class Point:
    def __init__(self, x):
        self.x = x

def make(v):
    return Point(v)
`)
	fnIR := irOf(t, irs, "make")
	if len(fnIR.Calls) != 1 {
		t.Fatalf("calls = %v, want one", fnIR.Calls)
	}
	args := fnIR.Calls[0].Args.Args
	if len(args) != 2 || args[0] != ReturnResultName {
		t.Errorf("args = %v, want [@ReturnValue v]", args)
	}
}

func TestClassMethods(t *testing.T) {
	irs, _ := analyse(t, `
class Store:
    def load(self, key):
        return self.data[key]

    @staticmethod
    def version():
        return VERSION
`)
	loadIR := irOf(t, irs, "Store.load")
	if !loadIR.Gets.Has("self.data[]") {
		t.Errorf("Store.load gets = %v, want self.data[]", setNames(loadIR.Gets))
	}
	versionIR := irOf(t, irs, "Store.version")
	if !versionIR.Gets.Has("VERSION") {
		t.Errorf("Store.version gets = %v, want VERSION", setNames(versionIR.Gets))
	}
}

func TestEnumMembers(t *testing.T) {
	irs, _ := analyse(t, `
from enum import Enum

class Colour(Enum):
    RED = 1
    GREEN = 2
`)
	enumIR := irOf(t, irs, "Colour")
	wantNames(t, enumIR.Gets, "Colour.RED", "Colour.GREEN")
}

func TestComprehensionScope(t *testing.T) {
	irs, _ := analyse(t, `
def f(items):
    return [i.value for i in items if i.ok]
`)
	fnIR := irOf(t, irs, "f")
	if !fnIR.Gets.Has("items") || !fnIR.Gets.Has("i.value") || !fnIR.Gets.Has("i.ok") {
		t.Errorf("gets = %v", setNames(fnIR.Gets))
	}
}

func TestNestedFunctionInline(t *testing.T) {
	irs, led := analyse(t, `
def f(a):
    def helper(b):
        return b.attr
    return helper(a)
`)
	fnIR := irOf(t, irs, "f")
	if !fnIR.Gets.Has("b.attr") {
		t.Errorf("gets = %v, want inlined b.attr", setNames(fnIR.Gets))
	}
	if led.Total("test.py") == 0 {
		t.Error("nested function recorded no badness")
	}
}

func TestGlobalWriteFromNestedFunctionIsFatal(t *testing.T) {
	led := ledger.New(nullSink{})
	_, err := AnalyseFile([]byte(`
def f():
    def bump():
        global counter
        counter = counter + 1
    bump()
`), "test.py", led, nil, config.Default())
	if err == nil {
		t.Fatal("global write from nested function did not abort")
	}
	if !led.HasFatal("test.py") {
		t.Error("no fatal record")
	}
}

func TestGlobalWriteInDirectFunction(t *testing.T) {
	irs, led := analyse(t, `
counter = 0

def bump():
    global counter
    counter = counter + 1
`)
	fnIR := irOf(t, irs, "bump")
	wantNames(t, fnIR.Sets, "counter")
	wantNames(t, fnIR.Gets, "counter")
	if led.HasFatal("test.py") {
		t.Error("direct global write recorded a fatal")
	}
}

func TestImportInsideFunctionIsFatal(t *testing.T) {
	led := ledger.New(nullSink{})
	_, err := AnalyseFile([]byte(`
def f():
    import json
    return json.dumps({})
`), "test.py", led, nil, config.Default())
	if err == nil {
		t.Fatal("import inside function did not abort")
	}
}

func TestSyntaxErrorIsFatal(t *testing.T) {
	led := ledger.New(nullSink{})
	_, err := AnalyseFile([]byte("def f(:\n"), "test.py", led, nil, config.Default())
	if err == nil {
		t.Fatal("syntax error did not abort")
	}
	if !led.HasFatal("test.py") {
		t.Error("no fatal record for syntax error")
	}
}

func TestLambdaAssignment(t *testing.T) {
	irs, _ := analyse(t, `
def f(a):
    pick = lambda r: r.first
    return pick(a)
`)
	fnIR := irOf(t, irs, "f")
	if !fnIR.Sets.Has("pick") {
		t.Errorf("sets = %v, want pick", setNames(fnIR.Sets))
	}
	if !fnIR.Gets.Has("r.first") {
		t.Errorf("gets = %v, want lambda body r.first", setNames(fnIR.Gets))
	}
}

func TestModuleLevelLambda(t *testing.T) {
	irs, _ := analyse(t, `
first = lambda xs: xs[0]
`)
	fnIR := irOf(t, irs, "first")
	if !fnIR.Gets.Has("xs[]") {
		t.Errorf("gets = %v, want xs[]", setNames(fnIR.Gets))
	}
}

func TestRattrIgnore(t *testing.T) {
	irs, _ := analyse(t, `
@rattr_ignore
def skipped(a):
    return a.b

def kept(a):
    return a.c
`)
	if _, ok := irs["skipped"]; ok {
		t.Error("ignored function was analysed")
	}
	irOf(t, irs, "kept")
}

func TestRattrResults(t *testing.T) {
	irs, _ := analyse(t, `
@rattr_results(gets={"a.b"}, sets={"c"})
def override(a, c):
    return a.everything.else_
`)
	fnIR := irOf(t, irs, "override")
	wantNames(t, fnIR.Gets, "a.b")
	wantNames(t, fnIR.Sets, "c")
}

func TestRattrResultsNonLiteralFallsBack(t *testing.T) {
	irs, led := analyse(t, `
@rattr_results(gets=compute())
def f(a):
    return a.b
`)
	fnIR := irOf(t, irs, "f")
	if !fnIR.Gets.Has("a.b") {
		t.Errorf("gets = %v, want body results", setNames(fnIR.Gets))
	}
	if led.Total("test.py") == 0 {
		t.Error("non-literal rattr_results recorded no badness")
	}
}

func TestUndefinedNameWarns(t *testing.T) {
	_, led := analyse(t, `
def f():
    return phantom.value
`)
	if led.Total("test.py") == 0 {
		t.Error("undefined name recorded no badness")
	}
}

func TestExcludedName(t *testing.T) {
	cfg := config.Default()
	cfg.Exclude = []string{"_*"}
	if err := cfg.Compile(); err != nil {
		t.Fatal(err)
	}
	led := ledger.New(nullSink{})
	fir, err := AnalyseFile([]byte(`
def _private(a):
    return a.b

def public(a):
    return a.c
`), "test.py", led, nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for sym := range fir.Functions {
		if sym.SymbolName() == "_private" {
			t.Error("excluded function was analysed")
		}
	}
}

func TestIgnoredClass(t *testing.T) {
	irs, _ := analyse(t, `
@rattr_ignore
class Hidden:
    def __init__(self):
        self.x = 1

    def touch(self, a):
        a.b = 2
`)
	if _, ok := irs["Hidden"]; ok {
		t.Error("ignored class was analysed")
	}
	if _, ok := irs["Hidden.touch"]; ok {
		t.Error("method of ignored class was analysed")
	}
}

func TestExcludedClass(t *testing.T) {
	cfg := config.Default()
	cfg.Exclude = []string{"Secret*"}
	if err := cfg.Compile(); err != nil {
		t.Fatal(err)
	}
	led := ledger.New(nullSink{})
	fir, err := AnalyseFile([]byte(`
class Secret:
    def __init__(self):
        self.token = 1

    def peek(self, a):
        return a.inner
`), "test.py", led, nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for sym := range fir.Functions {
		name := sym.SymbolName()
		if name == "Secret" || name == "Secret.peek" {
			t.Errorf("excluded class produced IR for %q", name)
		}
	}
}

func TestReassignedNameMergesAccesses(t *testing.T) {
	irs, _ := analyse(t, `
class C:
    def __init__(self):
        self.z = 1

def f(m):
    m.a
    m = C()
    m.b
`)
	fnIR := irOf(t, irs, "f")
	wantNames(t, fnIR.Gets, "m.a", "m.b")
	wantNames(t, fnIR.Sets, "m")
}

func TestChainedAssignment(t *testing.T) {
	irs, _ := analyse(t, `
def f(c):
    a = b = c.attr
`)
	fnIR := irOf(t, irs, "f")
	wantNames(t, fnIR.Gets, "c.attr")
	wantNames(t, fnIR.Sets, "a", "b")
}
