// Package analyser walks parsed Python and produces per-callable IR: the
// names a function gets, sets and deletes, and the calls it makes.
package analyser

import (
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/SuadeLabs/rattr/internal/context"
	"github.com/SuadeLabs/rattr/internal/ir"
	"github.com/SuadeLabs/rattr/internal/ledger"
	"github.com/SuadeLabs/rattr/internal/names"
	"github.com/SuadeLabs/rattr/internal/parser"
	"github.com/SuadeLabs/rattr/internal/symbol"
)

// Self binding recorded when an instance is constructed without a name to
// bind it to.
const (
	LocalResultName  = "@Local"
	ReturnResultName = "@ReturnValue"
)

type functionAnalyser struct {
	ctx    *context.Context
	ir     *ir.FunctionIR
	source []byte
	led    *ledger.Ledger
}

// AnalyseFunction produces the IR of one function definition. The body is
// visited in a child scope of parent seeded with the formal parameters.
func AnalyseFunction(
	def *tree_sitter.Node,
	fn *symbol.Func,
	parent *context.Context,
	source []byte,
) (*ir.FunctionIR, error) {
	a := &functionAnalyser{
		ctx:    parent.Child(context.ScopeFunction),
		ir:     ir.NewFunctionIR(),
		source: source,
		led:    parent.Ledger(),
	}
	a.declareScopeStatements(def.ChildByFieldName("body"))
	for _, param := range fn.Interface.All() {
		a.ctx.AddArgument(param)
	}
	if err := a.visitBlock(def.ChildByFieldName("body")); err != nil {
		return nil, err
	}
	return a.ir, nil
}

// AnalyseLambda produces the IR of a lambda assigned to a name.
func AnalyseLambda(
	lambda *tree_sitter.Node,
	fn *symbol.Func,
	parent *context.Context,
	source []byte,
) (*ir.FunctionIR, error) {
	a := &functionAnalyser{
		ctx:    parent.Child(context.ScopeFunction),
		ir:     ir.NewFunctionIR(),
		source: source,
		led:    parent.Ledger(),
	}
	for _, param := range fn.Interface.All() {
		a.ctx.AddArgument(param)
	}
	if body := lambda.ChildByFieldName("body"); body != nil {
		if err := a.visitExpr(body); err != nil {
			return nil, err
		}
	}
	return a.ir, nil
}

// declareScopeStatements runs the declaration pre-pass: global and nonlocal
// statements take effect for the whole scope regardless of where they
// appear, so they must be registered before the body is visited. Nested
// callables are not descended into; their declarations bind their own
// scope.
func (a *functionAnalyser) declareScopeStatements(block *tree_sitter.Node) {
	if block == nil {
		return
	}
	parser.Walk(block, func(node *tree_sitter.Node) bool {
		switch node.Kind() {
		case "function_definition", "lambda", "class_definition":
			return false
		case "global_statement":
			for _, ident := range parser.NamedChildren(node) {
				a.ctx.MarkGlobal(parser.NodeText(ident, a.source))
			}
			return false
		case "nonlocal_statement":
			for _, ident := range parser.NamedChildren(node) {
				a.ctx.MarkNonlocal(parser.NodeText(ident, a.source))
			}
			return false
		}
		return true
	})
}

func (a *functionAnalyser) visitBlock(block *tree_sitter.Node) error {
	if block == nil {
		return nil
	}
	for _, stmt := range parser.NamedChildren(block) {
		if err := a.visitStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (a *functionAnalyser) visitStmt(node *tree_sitter.Node) error {
	switch node.Kind() {
	case "expression_statement":
		for _, child := range parser.NamedChildren(node) {
			switch child.Kind() {
			case "assignment":
				if err := a.visitAssign(child); err != nil {
					return err
				}
			case "augmented_assignment":
				if err := a.visitAugAssign(child); err != nil {
					return err
				}
			default:
				if err := a.visitExpr(child); err != nil {
					return err
				}
			}
		}
		return nil

	case "return_statement":
		return a.visitReturn(node)

	case "delete_statement":
		for _, target := range parser.NamedChildren(node) {
			if err := a.visitDelTarget(target); err != nil {
				return err
			}
		}
		return nil

	case "if_statement", "while_statement":
		if cond := node.ChildByFieldName("condition"); cond != nil {
			if err := a.visitExpr(cond); err != nil {
				return err
			}
		}
		return a.visitClauses(node)

	case "for_statement":
		if right := node.ChildByFieldName("right"); right != nil {
			if err := a.visitExpr(right); err != nil {
				return err
			}
		}
		if left := node.ChildByFieldName("left"); left != nil {
			if err := a.visitTarget(left); err != nil {
				return err
			}
		}
		return a.visitClauses(node)

	case "with_statement":
		return a.visitWith(node)

	case "try_statement":
		return a.visitClauses(node)

	case "raise_statement", "assert_statement", "yield":
		for _, child := range parser.NamedChildren(node) {
			if err := a.visitExpr(child); err != nil {
				return err
			}
		}
		return nil

	case "import_statement", "import_from_statement", "future_import_statement":
		return a.led.Fatal("imports must be at module level", context.PosOf(node))

	case "function_definition":
		return a.visitNestedFunc(node)

	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			return a.visitStmt(def)
		}
		return nil

	case "class_definition":
		return a.led.Error(
			fmt.Sprintf("unsupported class definition %q inside function",
				parser.FieldText(node, "name", a.source)),
			context.PosOf(node))

	case "global_statement", "nonlocal_statement":
		// handled by the declaration pre-pass
		return nil

	case "match_statement":
		if subject := node.ChildByFieldName("subject"); subject != nil {
			if err := a.visitExpr(subject); err != nil {
				return err
			}
		}
		return a.visitClauses(node)

	case "pass_statement", "break_statement", "continue_statement", "comment":
		return nil

	default:
		for _, child := range parser.NamedChildren(node) {
			if err := a.visitExpr(child); err != nil {
				return err
			}
		}
		return nil
	}
}

// visitClauses visits the blocks and clauses of a compound statement.
func (a *functionAnalyser) visitClauses(node *tree_sitter.Node) error {
	for _, child := range parser.NamedChildren(node) {
		switch child.Kind() {
		case "block":
			if err := a.visitBlock(child); err != nil {
				return err
			}
		case "elif_clause":
			if cond := child.ChildByFieldName("condition"); cond != nil {
				if err := a.visitExpr(cond); err != nil {
					return err
				}
			}
			if err := a.visitClauses(child); err != nil {
				return err
			}
		case "else_clause", "finally_clause", "case_clause":
			if err := a.visitClauses(child); err != nil {
				return err
			}
		case "except_clause", "except_group_clause":
			if err := a.visitExcept(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *functionAnalyser) visitExcept(clause *tree_sitter.Node) error {
	for _, child := range parser.NamedChildren(clause) {
		switch child.Kind() {
		case "block":
			if err := a.visitBlock(child); err != nil {
				return err
			}
		case "as_pattern":
			if value := child.NamedChild(0); value != nil {
				if err := a.visitExpr(value); err != nil {
					return err
				}
			}
			if alias := child.ChildByFieldName("alias"); alias != nil {
				for _, name := range context.UnravelTargets(alias, a.source) {
					a.ctx.Add(symbol.NewName(name))
				}
			}
		default:
			if err := a.visitExpr(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *functionAnalyser) visitWith(node *tree_sitter.Node) error {
	for _, child := range parser.NamedChildren(node) {
		switch child.Kind() {
		case "with_clause":
			for _, item := range parser.NamedChildren(child) {
				value := item.ChildByFieldName("value")
				if value == nil {
					continue
				}
				if value.Kind() == "as_pattern" {
					if expr := value.NamedChild(0); expr != nil {
						if err := a.visitExpr(expr); err != nil {
							return err
						}
					}
					if alias := value.ChildByFieldName("alias"); alias != nil {
						if err := a.visitTarget(alias); err != nil {
							return err
						}
					}
				} else if err := a.visitExpr(value); err != nil {
					return err
				}
			}
		case "block":
			if err := a.visitBlock(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *functionAnalyser) visitReturn(node *tree_sitter.Node) error {
	for _, child := range parser.NamedChildren(node) {
		// Returning a fresh instance: the constructed object's attribute
		// accesses are attributed to the synthesised return value.
		if child.Kind() == "call" {
			if target := a.resolveCallee(child); target != nil {
				if _, isClass := target.(*symbol.Class); isClass {
					return a.visitCall(child, ReturnResultName)
				}
			}
		}
		if err := a.visitExpr(child); err != nil {
			return err
		}
	}
	return nil
}

func (a *functionAnalyser) visitAssign(node *tree_sitter.Node) error {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")

	if right != nil {
		switch right.Kind() {
		case "lambda":
			return a.visitLambdaAssign(left, right)
		case "assignment":
			// Chained assignment: the inner target is a set, not a get.
			if err := a.visitAssign(right); err != nil {
				return err
			}
			if left != nil {
				return a.visitTarget(left)
			}
			return nil
		case "call":
			if target := a.resolveCallee(right); target != nil {
				if _, isClass := target.(*symbol.Class); isClass {
					if err := a.visitTarget(left); err != nil {
						return err
					}
					return a.visitCall(right, names.Fullname(left, a.source))
				}
			}
		}
		if err := a.visitExpr(right); err != nil {
			return err
		}
	}
	if left != nil {
		return a.visitTarget(left)
	}
	return nil
}

// visitLambdaAssign registers the assigned lambda as a callable in the
// current scope and analyses its body under its own parameters.
func (a *functionAnalyser) visitLambdaAssign(left, lambda *tree_sitter.Node) error {
	name := names.Fullname(left, a.source)
	fn := &symbol.Func{
		Name:      name,
		Interface: context.LambdaInterface(lambda, a.source),
		DefinedIn: a.ctx.File(),
	}
	a.ctx.Add(fn)

	lambdaIR, err := AnalyseLambda(lambda, fn, a.ctx, a.source)
	if err != nil {
		return err
	}
	a.ir.Union(lambdaIR)
	return a.visitTarget(left)
}

func (a *functionAnalyser) visitAugAssign(node *tree_sitter.Node) error {
	if right := node.ChildByFieldName("right"); right != nil {
		if err := a.visitExpr(right); err != nil {
			return err
		}
	}
	if left := node.ChildByFieldName("left"); left != nil {
		return a.visitTarget(left)
	}
	return nil
}

// visitTarget records an assignment target as a set and binds plain
// identifiers in the current scope.
func (a *functionAnalyser) visitTarget(node *tree_sitter.Node) error {
	switch node.Kind() {
	case "identifier", "keyword_identifier":
		name := parser.NodeText(node, a.source)
		a.ir.Sets.Add(symbol.Name{Name: name, Basename: name})
		a.ctx.Add(symbol.NewName(name))
		return nil
	case "attribute", "subscript":
		basename, fullname := names.Pair(node, a.source)
		a.ctx.ResolveAccess(basename, true, context.PosOf(node))
		a.ir.Sets.Add(symbol.Name{Name: fullname, Basename: basename})
		return nil
	case "tuple_pattern", "list_pattern", "pattern_list", "tuple", "list", "expression_list":
		for _, child := range parser.NamedChildren(node) {
			if err := a.visitTarget(child); err != nil {
				return err
			}
		}
		return nil
	case "list_splat_pattern", "list_splat", "parenthesized_expression":
		if inner := node.NamedChild(0); inner != nil {
			return a.visitTarget(inner)
		}
		return nil
	default:
		return a.led.Error(
			fmt.Sprintf("unsupported assignment target %q", node.Kind()),
			context.PosOf(node))
	}
}

func (a *functionAnalyser) visitDelTarget(node *tree_sitter.Node) error {
	switch node.Kind() {
	case "tuple", "expression_list", "parenthesized_expression":
		for _, child := range parser.NamedChildren(node) {
			if err := a.visitDelTarget(child); err != nil {
				return err
			}
		}
		return nil
	}
	basename, fullname := names.Pair(node, a.source)
	a.ir.Dels.Add(symbol.Name{Name: fullname, Basename: basename})
	if node.Kind() == "identifier" {
		a.ctx.Remove(basename)
	}
	return nil
}

func (a *functionAnalyser) visitExpr(node *tree_sitter.Node) error {
	if node == nil {
		return nil
	}
	switch node.Kind() {
	case "identifier", "keyword_identifier":
		name := parser.NodeText(node, a.source)
		a.ctx.ResolveAccess(name, false, context.PosOf(node))
		a.ir.Gets.Add(symbol.Name{Name: name, Basename: name})
		return nil

	case "attribute":
		basename, fullname := names.Pair(node, a.source)
		a.ctx.ResolveAccess(basename, false, context.PosOf(node))
		a.ir.Gets.Add(symbol.Name{Name: fullname, Basename: basename})
		return nil

	case "subscript":
		basename, fullname := names.Pair(node, a.source)
		a.ctx.ResolveAccess(basename, false, context.PosOf(node))
		a.ir.Gets.Add(symbol.Name{Name: fullname, Basename: basename})
		return nil

	case "call":
		return a.visitCall(node, "")

	case "named_expression":
		if value := node.ChildByFieldName("value"); value != nil {
			if err := a.visitExpr(value); err != nil {
				return err
			}
		}
		if name := node.ChildByFieldName("name"); name != nil {
			return a.visitTarget(name)
		}
		return nil

	case "lambda":
		a.led.Warning("unnamed lambda will not be resolvable as a call target",
			context.PosOf(node))
		fn := &symbol.Func{Interface: context.LambdaInterface(node, a.source)}
		lambdaIR, err := AnalyseLambda(node, fn, a.ctx, a.source)
		if err != nil {
			return err
		}
		a.ir.Union(lambdaIR)
		return nil

	case "list_comprehension", "set_comprehension",
		"dictionary_comprehension", "generator_expression":
		return a.visitComprehension(node)

	case "string":
		for _, child := range parser.NamedChildren(node) {
			if child.Kind() == "interpolation" {
				if expr := child.ChildByFieldName("expression"); expr != nil {
					if err := a.visitExpr(expr); err != nil {
						return err
					}
				}
			}
		}
		return nil

	case "pair":
		if key := node.ChildByFieldName("key"); key != nil {
			if err := a.visitExpr(key); err != nil {
				return err
			}
		}
		if value := node.ChildByFieldName("value"); value != nil {
			return a.visitExpr(value)
		}
		return nil

	case "integer", "float", "true", "false", "none", "ellipsis",
		"concatenated_string", "type_parameter", "comment":
		return nil

	default:
		// Operators, literals with elements, await/yield wrappers and
		// anything else structural: descend.
		for _, child := range parser.NamedChildren(node) {
			if err := a.visitExpr(child); err != nil {
				return err
			}
		}
		return nil
	}
}

// visitComprehension analyses a comprehension in its own scope. The
// produced accesses merge into the enclosing IR; the comprehension
// variables stay local.
func (a *functionAnalyser) visitComprehension(node *tree_sitter.Node) error {
	inner := &functionAnalyser{
		ctx:    a.ctx.Child(context.ScopeComprehension),
		ir:     a.ir,
		source: a.source,
		led:    a.led,
	}
	for _, child := range parser.NamedChildren(node) {
		switch child.Kind() {
		case "for_in_clause":
			if right := child.ChildByFieldName("right"); right != nil {
				if err := inner.visitExpr(right); err != nil {
					return err
				}
			}
			if left := child.ChildByFieldName("left"); left != nil {
				for _, name := range context.UnravelTargets(left, a.source) {
					inner.ctx.AddArgument(name)
				}
			}
		case "if_clause":
			for _, cond := range parser.NamedChildren(child) {
				if err := inner.visitExpr(cond); err != nil {
					return err
				}
			}
		default:
			if err := inner.visitExpr(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// visitNestedFunc registers a nested definition and analyses its body
// inline, merging its accesses into the enclosing IR. A nested function
// writing a global is beyond what inline merging can represent.
func (a *functionAnalyser) visitNestedFunc(node *tree_sitter.Node) error {
	name := parser.FieldText(node, "name", a.source)
	a.led.Warning(
		fmt.Sprintf("nested function %q is analysed inline with its enclosing function", name),
		context.PosOf(node))

	fn := &symbol.Func{
		Name:      name,
		Interface: context.InterfaceOf(node.ChildByFieldName("parameters"), a.source),
		DefinedIn: a.ctx.File(),
	}
	a.ctx.Add(fn)

	inner := &functionAnalyser{
		ctx:    a.ctx.Child(context.ScopeFunction),
		ir:     a.ir,
		source: a.source,
		led:    a.led,
	}
	body := node.ChildByFieldName("body")
	inner.declareScopeStatements(body)
	if inner.declaresGlobalWrite(body) {
		return a.led.Fatal(
			fmt.Sprintf("nested function %q writes to a global", name),
			context.PosOf(node))
	}
	for _, param := range fn.Interface.All() {
		inner.ctx.AddArgument(param)
	}
	return inner.visitBlock(body)
}

// declaresGlobalWrite reports whether the scope both declares a name
// global and assigns it.
func (a *functionAnalyser) declaresGlobalWrite(block *tree_sitter.Node) bool {
	if block == nil {
		return false
	}
	found := false
	parser.Walk(block, func(node *tree_sitter.Node) bool {
		if found {
			return false
		}
		switch node.Kind() {
		case "function_definition", "lambda", "class_definition":
			return false
		case "assignment", "augmented_assignment":
			left := node.ChildByFieldName("left")
			for _, name := range context.UnravelTargets(left, a.source) {
				if a.ctx.IsGlobalDeclared(name) {
					found = true
				}
			}
		}
		return true
	})
	return found
}
