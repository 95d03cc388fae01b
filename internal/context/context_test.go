package context

import (
	"testing"

	"github.com/SuadeLabs/rattr/internal/ledger"
	"github.com/SuadeLabs/rattr/internal/parser"
	"github.com/SuadeLabs/rattr/internal/symbol"
)

type nullSink struct{}

func (nullSink) Emit(ledger.Record) {}

func newTestLedger() *ledger.Ledger { return ledger.New(nullSink{}) }

func TestScopeChainLookup(t *testing.T) {
	root := NewRoot("a.py", newTestLedger())
	root.Add(&symbol.Func{Name: "f"})

	fn := root.Child(ScopeFunction)
	fn.AddArgument("x")

	if sym := fn.Get("x"); sym == nil {
		t.Fatal("argument x not resolvable in function scope")
	}
	if sym := fn.Get("f"); sym == nil {
		t.Fatal("module symbol f not resolvable from function scope")
	}
	if sym := root.Get("x"); sym != nil {
		t.Fatalf("x leaked to module scope: %v", sym)
	}
}

func TestClassScopeIsSkippedFromBelow(t *testing.T) {
	root := NewRoot("a.py", newTestLedger())
	cls := root.Child(ScopeClass)
	cls.Add(symbol.NewName("attr"))
	method := cls.Child(ScopeFunction)

	if sym := method.Get("attr"); sym != nil {
		t.Error("class-scope name resolvable from method body")
	}
	if sym := cls.Get("attr"); sym == nil {
		t.Error("class-scope name not resolvable in class body")
	}
}

func TestGlobalRedirect(t *testing.T) {
	root := NewRoot("a.py", newTestLedger())
	fn := root.Child(ScopeFunction)
	fn.MarkGlobal("counter")
	fn.Add(symbol.NewName("counter"))

	if !root.Declares("counter") {
		t.Error("global write did not bind at module scope")
	}
	if fn.Declares("counter") {
		t.Error("global write bound a function-scope local")
	}
}

func TestNonlocalRedirect(t *testing.T) {
	root := NewRoot("a.py", newTestLedger())
	outer := root.Child(ScopeFunction)
	outer.Add(symbol.NewName("state"))
	inner := outer.Child(ScopeFunction)
	inner.MarkNonlocal("state")
	inner.Add(symbol.NewName("state"))

	if inner.Declares("state") {
		t.Error("nonlocal write bound an inner local")
	}
	if !outer.Declares("state") {
		t.Error("nonlocal write did not rebind the enclosing scope")
	}
}

func TestBuiltinFallback(t *testing.T) {
	root := NewRoot("a.py", newTestLedger())
	if _, ok := root.Get("len").(symbol.Builtin); !ok {
		t.Error("len did not resolve as a builtin")
	}
	if sym := root.Get("not_a_builtin"); sym != nil {
		t.Errorf("unexpected resolution: %v", sym)
	}
}

func TestGetCallTarget(t *testing.T) {
	led := newTestLedger()
	root := NewRoot("a.py", led)
	root.Add(&symbol.Func{Name: "f"})
	root.Add(&symbol.Class{Name: "C"})
	root.Add(symbol.Import{Name: "math", Qualified: "math", Module: "math"})

	if _, ok := root.GetCallTarget("f()", ledger.Pos{}).(*symbol.Func); !ok {
		t.Error("f() did not resolve to the function")
	}
	if _, ok := root.GetCallTarget("C()", ledger.Pos{}).(*symbol.Class); !ok {
		t.Error("C() did not resolve to the class")
	}

	target := root.GetCallTarget("math.cos()", ledger.Pos{})
	imp, ok := target.(symbol.Import)
	if !ok {
		t.Fatalf("math.cos() resolved to %T, want Import", target)
	}
	if imp.Qualified != "math.cos" {
		t.Errorf("qualified = %q, want %q", imp.Qualified, "math.cos")
	}

	if target := root.GetCallTarget("@Str.join()", ledger.Pos{}); target != nil {
		t.Errorf("synthetic callee resolved to %v", target)
	}
}

func TestGetCallTargetDiagnostics(t *testing.T) {
	led := newTestLedger()
	restore := led.EnterFile("a.py")
	defer restore()

	root := NewRoot("a.py", led)
	fn := root.Child(ScopeFunction)
	fn.AddArgument("callback")

	if target := fn.GetCallTarget("callback()", ledger.Pos{}); target != nil {
		t.Errorf("procedural parameter resolved to %v", target)
	}
	if led.Total("a.py") == 0 {
		t.Error("procedural parameter call recorded no badness")
	}
}

func TestRootContextFromSource(t *testing.T) {
	source := []byte(`
import math
from collections import OrderedDict as OD

CONST = 1

def f(a, b=0, *args, **kwargs):
    pass

class Point:
    def __init__(self, x, y):
        self.x = x
`)
	tree, err := parser.Parse(source)
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	root := NewRootContext(tree.RootNode(), source, "a.py", newTestLedger(), nil)

	if _, ok := root.Get("math").(symbol.Import); !ok {
		t.Error("math not bound as import")
	}
	imp, ok := root.Get("OD").(symbol.Import)
	if !ok {
		t.Fatal("aliased import OD not bound")
	}
	if imp.Qualified != "collections.OrderedDict" {
		t.Errorf("OD qualified = %q, want collections.OrderedDict", imp.Qualified)
	}
	if _, ok := root.Get("CONST").(symbol.Name); !ok {
		t.Error("module constant not bound")
	}

	fn, ok := root.Get("f").(*symbol.Func)
	if !ok {
		t.Fatal("f not bound as function")
	}
	wantParams := []string{"a", "b"}
	if len(fn.Interface.Params) != len(wantParams) {
		t.Fatalf("f params = %v, want %v", fn.Interface.Params, wantParams)
	}
	if fn.Interface.Vararg != "args" || fn.Interface.Kwarg != "kwargs" {
		t.Errorf("f stars = (%q, %q), want (args, kwargs)",
			fn.Interface.Vararg, fn.Interface.Kwarg)
	}

	cls, ok := root.Get("Point").(*symbol.Class)
	if !ok {
		t.Fatal("Point not bound as class")
	}
	if len(cls.Interface.Params) != 3 {
		t.Errorf("Point interface params = %v, want [self x y]", cls.Interface.Params)
	}
}

func TestUnravelTargets(t *testing.T) {
	source := []byte("a, (b, c) = x\n")
	tree, err := parser.Parse(source)
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	assign := tree.RootNode().NamedChild(0).NamedChild(0)
	left := assign.ChildByFieldName("left")
	got := UnravelTargets(left, source)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("UnravelTargets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("UnravelTargets[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
