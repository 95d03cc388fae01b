package names

import (
	"testing"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/SuadeLabs/rattr/internal/parser"
)

// firstExpr parses src as a module and returns the first expression
// statement's expression.
func firstExpr(t *testing.T, src string) (*tree_sitter.Node, []byte) {
	t.Helper()
	source := []byte(src)
	tree, err := parser.Parse(source)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	t.Cleanup(tree.Close)

	stmt := tree.RootNode().NamedChild(0)
	if stmt == nil || stmt.Kind() != "expression_statement" {
		t.Fatalf("parse %q: expected expression statement, got %v", src, stmt)
	}
	return stmt.NamedChild(0), source
}

func TestPair(t *testing.T) {
	tests := []struct {
		src      string
		basename string
		fullname string
	}{
		{"a", "a", "a"},
		{"a.b.c", "a", "a.b.c"},
		{"a[0]", "a", "a[]"},
		{"a.b[0].c", "a", "a.b[].c"},
		{"f(x)", "f", "f()"},
		{"a.b(x).c", "a", "a.b().c"},
		{"(a)", "a", "a"},
		{"(a + b).attr", "@BinaryOp", "@BinaryOp.attr"},
		{"(lambda: 0).res", "@Lambda", "@Lambda.res"},
		{"'sep'.join(parts)", "@Str", "@Str.join()"},
		{"getattr(a, 'b')", "a", "a.b"},
		{"getattr(a.b, 'c')", "a", "a.b.c"},
		{"getattr(getattr(a, 'b'), 'c')", "a", "a.b.c"},
		{"hasattr(obj, 'field')", "obj", "obj.field"},
		{"getattr(a, name)", "a", "a.<name>"},
	}
	for _, tt := range tests {
		node, source := firstExpr(t, tt.src)
		base, full := Pair(node, source)
		if base != tt.basename || full != tt.fullname {
			t.Errorf("Pair(%q) = (%q, %q), want (%q, %q)",
				tt.src, base, full, tt.basename, tt.fullname)
		}
	}
}

func TestPairSplat(t *testing.T) {
	node, source := firstExpr(t, "f(*args, **kwargs)")
	argList := node.ChildByFieldName("arguments")
	star := argList.NamedChild(0)
	dstar := argList.NamedChild(1)

	if _, full := Pair(star, source); full != "*args" {
		t.Errorf("starred arg = %q, want %q", full, "*args")
	}
	if _, full := Pair(dstar, source); full != "**kwargs" {
		t.Errorf("double-starred arg = %q, want %q", full, "**kwargs")
	}
}

func TestStringLiteral(t *testing.T) {
	tests := []struct {
		src  string
		want string
		ok   bool
	}{
		{"'attr'", "attr", true},
		{"\"attr\"", "attr", true},
		{"f'{x}'", "", false},
		{"123", "", false},
	}
	for _, tt := range tests {
		node, source := firstExpr(t, tt.src)
		got, ok := StringLiteral(node, source)
		if got != tt.want || ok != tt.ok {
			t.Errorf("StringLiteral(%q) = (%q, %v), want (%q, %v)",
				tt.src, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRemoveCallBrackets(t *testing.T) {
	if got := RemoveCallBrackets("a.b().c()"); got != "a.b.c" {
		t.Errorf("RemoveCallBrackets = %q, want %q", got, "a.b.c")
	}
}

func TestStripAccessors(t *testing.T) {
	tests := []struct{ in, want string }{
		{"a.b[].c()", "a.b.c"},
		{"*a.b", "a.b"},
		{"**kw", "kw"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := StripAccessors(tt.in); got != tt.want {
			t.Errorf("StripAccessors(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTagFor(t *testing.T) {
	tests := []struct{ kind, want string }{
		{"binary_operator", "BinaryOp"},
		{"string", "Str"},
		{"list_comprehension", "ListComp"},
		{"await", "Await"},
		{"some_new_kind", "SomeNewKind"},
	}
	for _, tt := range tests {
		if got := TagFor(tt.kind); got != tt.want {
			t.Errorf("TagFor(%q) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestIsSynthetic(t *testing.T) {
	if !IsSynthetic("@BinaryOp.attr") {
		t.Error("@BinaryOp.attr should be synthetic")
	}
	if !IsSynthetic("*@Tuple") {
		t.Error("*@Tuple should be synthetic")
	}
	if IsSynthetic("a.b") {
		t.Error("a.b should not be synthetic")
	}
}
