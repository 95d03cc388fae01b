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

// Annotation names recognised on callables. They are honoured whether
// written bare or qualified ("app.rattr_ignore").
const (
	annotationIgnore  = "rattr_ignore"
	annotationResults = "rattr_results"
)

// annotations are the recognised decorations on one definition.
type annotations struct {
	ignore  bool
	results *tree_sitter.Node // the rattr_results(...) call, nil if absent
}

// annotationsOf inspects the decorators of a decorated_definition wrapping
// def. decorated may be nil when the definition is bare.
func annotationsOf(decorated *tree_sitter.Node, source []byte) annotations {
	var out annotations
	if decorated == nil {
		return out
	}
	for _, child := range parser.NamedChildren(decorated) {
		if child.Kind() != "decorator" {
			continue
		}
		expr := child.NamedChild(0)
		if expr == nil {
			continue
		}
		name := expr
		if expr.Kind() == "call" {
			name = expr.ChildByFieldName("function")
		}
		switch lastSegment(parser.NodeText(name, source)) {
		case annotationIgnore:
			out.ignore = true
		case annotationResults:
			if expr.Kind() == "call" {
				out.results = expr
			}
		}
	}
	return out
}

func lastSegment(dotted string) string {
	for i := len(dotted) - 1; i >= 0; i-- {
		if dotted[i] == '.' {
			return dotted[i+1:]
		}
	}
	return dotted
}

// resultsFromAnnotation builds an IR from the literal keyword arguments of
// a rattr_results decoration: gets, sets, dels as collections of string
// literals, calls as a collection of (name, ([args], {kwargs})) pairs. A
// non-literal argument is an error; the caller falls back to analysing the
// body.
func resultsFromAnnotation(
	call *tree_sitter.Node,
	source []byte,
	led *ledger.Ledger,
) (*ir.FunctionIR, error) {
	out := ir.NewFunctionIR()
	argsNode := call.ChildByFieldName("arguments")
	for _, arg := range parser.NamedChildren(argsNode) {
		if arg.Kind() != "keyword_argument" {
			return nil, led.Error(
				"rattr_results accepts keyword arguments only", context.PosOf(arg))
		}
		key := parser.FieldText(arg, "name", source)
		value := arg.ChildByFieldName("value")
		switch key {
		case "gets", "sets", "dels":
			literals, ok := stringElements(value, source)
			if !ok {
				return nil, led.Error(
					fmt.Sprintf("rattr_results %q must be a literal collection of strings", key),
					context.PosOf(value))
			}
			for _, name := range literals {
				entry := symbol.Name{Name: name, Basename: names.StripAccessors(name)}
				switch key {
				case "gets":
					out.Gets.Add(entry)
				case "sets":
					out.Sets.Add(entry)
				case "dels":
					out.Dels.Add(entry)
				}
			}
		case "calls":
			calls, ok := callElements(value, source)
			if !ok {
				return nil, led.Error(
					"rattr_results \"calls\" must be literal (name, ([args], {kwargs})) pairs",
					context.PosOf(value))
			}
			for _, c := range calls {
				out.AddCall(c)
			}
		default:
			return nil, led.Error(
				fmt.Sprintf("rattr_results got unexpected argument %q", key),
				context.PosOf(arg))
		}
	}
	return out, nil
}

// stringElements extracts the string literals of a set/list/tuple literal.
func stringElements(node *tree_sitter.Node, source []byte) ([]string, bool) {
	if node == nil {
		return nil, false
	}
	switch node.Kind() {
	case "set", "list", "tuple":
	default:
		return nil, false
	}
	var out []string
	for _, el := range parser.NamedChildren(node) {
		s, ok := names.StringLiteral(el, source)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// callElements extracts literal call descriptions: each element is a tuple
// of a callee name and a ([positional], {keyword: value}) pair.
func callElements(node *tree_sitter.Node, source []byte) ([]*symbol.Call, bool) {
	if node == nil {
		return nil, false
	}
	switch node.Kind() {
	case "set", "list", "tuple":
	default:
		return nil, false
	}
	var out []*symbol.Call
	for _, el := range parser.NamedChildren(node) {
		if el.Kind() != "tuple" {
			return nil, false
		}
		parts := parser.NamedChildren(el)
		if len(parts) != 2 {
			return nil, false
		}
		name, ok := names.StringLiteral(parts[0], source)
		if !ok {
			return nil, false
		}
		args := symbol.NewCallArgs()
		argParts := parser.NamedChildren(parts[1])
		if parts[1].Kind() != "tuple" || len(argParts) != 2 {
			return nil, false
		}
		positional, ok := stringElements(argParts[0], source)
		if !ok {
			return nil, false
		}
		args.Args = positional
		if argParts[1].Kind() != "dictionary" {
			return nil, false
		}
		for _, pair := range parser.NamedChildren(argParts[1]) {
			if pair.Kind() != "pair" {
				return nil, false
			}
			k, kok := names.StringLiteral(pair.ChildByFieldName("key"), source)
			v, vok := names.StringLiteral(pair.ChildByFieldName("value"), source)
			if !kok || !vok {
				return nil, false
			}
			args.Kwargs[k] = v
		}
		out = append(out, &symbol.Call{Name: name, Args: args})
	}
	return out, true
}
