package context

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/SuadeLabs/rattr/internal/ledger"
	"github.com/SuadeLabs/rattr/internal/names"
	"github.com/SuadeLabs/rattr/internal/parser"
	"github.com/SuadeLabs/rattr/internal/symbol"
)

// ModuleFinder locates the source of a dotted module name. Implemented by
// the loader; nil is accepted (imports then stay unlocated).
type ModuleFinder interface {
	// FindModule returns the resolved path and origin of a module, with
	// ok=false when the name does not name a locatable module.
	FindModule(dotted string) (path string, origin symbol.Origin, ok bool)
	// ModuleOf splits a dotted name into its module prefix and remainder,
	// e.g. "pkg.mod.func" -> ("pkg.mod", "func").
	ModuleOf(dotted string) (module string, remainder string)
}

// PosOf returns the ledger position of a node.
func PosOf(node *tree_sitter.Node) ledger.Pos {
	if node == nil {
		return ledger.Pos{}
	}
	p := node.StartPosition()
	return ledger.Pos{Line: uint(p.Row) + 1, Col: uint(p.Column) + 1}
}

// NewRootContext builds the module-level context by a pre-pass over the
// module body: imports, assignments and definitions are declared before any
// function body is visited, so late declarations resolve correctly.
func NewRootContext(
	root *tree_sitter.Node,
	source []byte,
	file string,
	led *ledger.Ledger,
	finder ModuleFinder,
) *Context {
	ctx := NewRoot(file, led)
	b := &rootBuilder{ctx: ctx, source: source, file: file, finder: finder}
	b.registerStmts(parser.NamedChildren(root))
	return ctx
}

type rootBuilder struct {
	ctx    *Context
	source []byte
	file   string
	finder ModuleFinder
}

func (b *rootBuilder) registerStmts(stmts []*tree_sitter.Node) {
	for _, stmt := range stmts {
		b.registerStmt(stmt)
	}
}

func (b *rootBuilder) registerStmt(node *tree_sitter.Node) {
	switch node.Kind() {
	case "import_statement":
		b.registerImport(node)
	case "import_from_statement":
		b.registerImportFrom(node)
	case "future_import_statement":
		// no runtime effect
	case "expression_statement":
		for _, child := range parser.NamedChildren(node) {
			switch child.Kind() {
			case "assignment", "augmented_assignment":
				b.registerAssign(child)
			case "named_expression":
				if name := parser.FieldText(child, "name", b.source); name != "" {
					b.ctx.Add(symbol.NewName(name))
				}
			}
		}
	case "function_definition":
		b.registerFunc(node, false)
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			b.registerStmt(def)
		}
	case "class_definition":
		b.registerClass(node)
	case "if_statement", "while_statement", "try_statement",
		"with_statement", "for_statement", "match_statement":
		// Conditional declarations still declare; register every branch.
		b.registerCompound(node)
	case "delete_statement":
		for _, target := range parser.NamedChildren(node) {
			for _, name := range UnravelTargets(target, b.source) {
				b.ctx.Remove(name)
			}
		}
	}
}

func (b *rootBuilder) registerCompound(node *tree_sitter.Node) {
	if node.Kind() == "for_statement" {
		if left := node.ChildByFieldName("left"); left != nil {
			for _, name := range UnravelTargets(left, b.source) {
				b.ctx.Add(symbol.NewName(name))
			}
		}
	}
	for _, child := range parser.NamedChildren(node) {
		switch child.Kind() {
		case "block":
			b.registerStmts(parser.NamedChildren(child))
		case "elif_clause", "else_clause", "except_clause", "finally_clause", "case_clause":
			b.registerCompound(child)
		case "with_clause":
			for _, item := range parser.NamedChildren(child) {
				value := item.ChildByFieldName("value")
				if value != nil && value.Kind() == "as_pattern" {
					if alias := value.ChildByFieldName("alias"); alias != nil {
						for _, name := range UnravelTargets(alias, b.source) {
							b.ctx.Add(symbol.NewName(name))
						}
					}
				}
			}
		}
	}
}

func (b *rootBuilder) registerImport(node *tree_sitter.Node) {
	for _, child := range parser.NamedChildren(node) {
		switch child.Kind() {
		case "dotted_name":
			name := parser.NodeText(child, b.source)
			b.addImport(name, name, child)
		case "aliased_import":
			name := parser.FieldText(child, "name", b.source)
			alias := parser.FieldText(child, "alias", b.source)
			b.addImport(alias, name, child)
		}
	}
}

func (b *rootBuilder) registerImportFrom(node *tree_sitter.Node) {
	moduleNode := node.ChildByFieldName("module_name")
	modulePath := parser.NodeText(moduleNode, b.source)

	if strings.HasPrefix(modulePath, ".") {
		b.ctx.ledger.Warning(
			"relative imports are resolved against the target file's package", PosOf(node))
		modulePath = strings.TrimLeft(modulePath, ".")
	}

	// "from m import *"
	if hasWildcard(node) {
		b.addImport("*", modulePath+".*", node)
		return
	}

	for _, child := range parser.NamedChildren(node) {
		if moduleNode != nil && child.Id() == moduleNode.Id() {
			continue
		}
		switch child.Kind() {
		case "dotted_name":
			name := parser.NodeText(child, b.source)
			local := name
			if i := strings.LastIndexByte(name, '.'); i >= 0 {
				local = name[i+1:]
			}
			b.addImport(local, join(modulePath, name), child)
		case "aliased_import":
			name := parser.FieldText(child, "name", b.source)
			alias := parser.FieldText(child, "alias", b.source)
			b.addImport(alias, join(modulePath, name), child)
		}
	}
}

func hasWildcard(node *tree_sitter.Node) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child != nil && child.Kind() == "wildcard_import" {
			return true
		}
	}
	return false
}

func join(module, name string) string {
	if module == "" {
		return name
	}
	return module + "." + name
}

func (b *rootBuilder) addImport(local, qualified string, node *tree_sitter.Node) {
	if local == "" || qualified == "" {
		return
	}
	imp := symbol.Import{Name: local, Qualified: qualified}
	if b.finder != nil {
		module, _ := b.finder.ModuleOf(strings.TrimSuffix(qualified, ".*"))
		imp.Module = module
		if path, origin, ok := b.finder.FindModule(module); ok {
			imp.Path = path
			imp.Origin = origin
		}
	} else {
		imp.Module = strings.TrimSuffix(qualified, ".*")
	}
	b.ctx.Add(imp)
	_ = node
}

func (b *rootBuilder) registerAssign(node *tree_sitter.Node) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")

	// Non-anonymous lambda: the LHS becomes a callable.
	if right != nil && right.Kind() == "lambda" {
		name := names.Fullname(left, b.source)
		b.ctx.Add(&symbol.Func{
			Name:      name,
			Interface: LambdaInterface(right, b.source),
			DefinedIn: b.file,
		})
		return
	}

	for _, name := range UnravelTargets(left, b.source) {
		b.ctx.Add(symbol.NewName(name))
	}
}

func (b *rootBuilder) registerFunc(node *tree_sitter.Node, isAsync bool) {
	name := parser.FieldText(node, "name", b.source)
	if name == "" {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child != nil && child.Kind() == "async" {
			isAsync = true
		}
	}
	b.ctx.Add(&symbol.Func{
		Name:      name,
		Interface: InterfaceOf(node.ChildByFieldName("parameters"), b.source),
		IsAsync:   isAsync,
		DefinedIn: b.file,
	})
}

func (b *rootBuilder) registerClass(node *tree_sitter.Node) {
	name := parser.FieldText(node, "name", b.source)
	if name == "" {
		return
	}
	cls := &symbol.Class{Name: name, DefinedIn: b.file}

	// The class doubles as the target of "ClassName()": take the call
	// interface from __init__ when present.
	if body := node.ChildByFieldName("body"); body != nil {
		for _, stmt := range parser.NamedChildren(body) {
			def := stmt
			if def.Kind() == "decorated_definition" {
				def = def.ChildByFieldName("definition")
			}
			if def == nil || def.Kind() != "function_definition" {
				continue
			}
			if parser.FieldText(def, "name", b.source) == "__init__" {
				cls.Interface = InterfaceOf(def.ChildByFieldName("parameters"), b.source)
				break
			}
		}
	}
	b.ctx.Add(cls)
}

// InterfaceOf extracts a callable's formal parameters from a "parameters"
// node.
func InterfaceOf(params *tree_sitter.Node, source []byte) symbol.CallInterface {
	var ci symbol.CallInterface
	if params == nil {
		return ci
	}
	for _, p := range parser.NamedChildren(params) {
		switch p.Kind() {
		case "identifier":
			ci.Params = append(ci.Params, parser.NodeText(p, source))
		case "typed_parameter":
			inner := p.NamedChild(0)
			if inner == nil {
				continue
			}
			switch inner.Kind() {
			case "identifier":
				ci.Params = append(ci.Params, parser.NodeText(inner, source))
			case "list_splat_pattern":
				ci.Vararg = splatName(inner, source)
			case "dictionary_splat_pattern":
				ci.Kwarg = splatName(inner, source)
			}
		case "default_parameter", "typed_default_parameter":
			if name := parser.FieldText(p, "name", source); name != "" {
				ci.Params = append(ci.Params, name)
			}
		case "list_splat_pattern":
			ci.Vararg = splatName(p, source)
		case "dictionary_splat_pattern":
			ci.Kwarg = splatName(p, source)
		case "positional_separator", "keyword_separator":
			// markers only
		}
	}
	return ci
}

// LambdaInterface extracts formal parameters from a lambda node.
func LambdaInterface(lambda *tree_sitter.Node, source []byte) symbol.CallInterface {
	return InterfaceOf(lambda.ChildByFieldName("parameters"), source)
}

func splatName(node *tree_sitter.Node, source []byte) string {
	if inner := node.NamedChild(0); inner != nil {
		return parser.NodeText(inner, source)
	}
	return ""
}

// UnravelTargets returns the bound identifiers of an assignment target:
// "a" for "a", "a" for "a.b[0]", both elements for "(a, b)".
func UnravelTargets(node *tree_sitter.Node, source []byte) []string {
	if node == nil {
		return nil
	}
	switch node.Kind() {
	case "identifier", "keyword_identifier":
		return []string{parser.NodeText(node, source)}
	case "attribute", "subscript":
		return []string{names.Basename(node, source)}
	case "tuple_pattern", "list_pattern", "pattern_list", "tuple", "list", "expression_list":
		var out []string
		for _, child := range parser.NamedChildren(node) {
			out = append(out, UnravelTargets(child, source)...)
		}
		return out
	case "list_splat_pattern", "list_splat", "parenthesized_expression":
		if inner := node.NamedChild(0); inner != nil {
			return UnravelTargets(inner, source)
		}
		return nil
	default:
		return nil
	}
}
