package analyser

import (
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/SuadeLabs/rattr/internal/context"
	"github.com/SuadeLabs/rattr/internal/names"
	"github.com/SuadeLabs/rattr/internal/parser"
	"github.com/SuadeLabs/rattr/internal/symbol"
)

// resolveCallee resolves the target of a call node without recording
// anything.
func (a *functionAnalyser) resolveCallee(call *tree_sitter.Node) symbol.Symbol {
	fnNode := call.ChildByFieldName("function")
	if fnNode == nil {
		return nil
	}
	if fnNode.Kind() == "identifier" {
		name := parser.NodeText(fnNode, a.source)
		if names.AttrBuiltins[name] {
			return nil
		}
	}
	return a.ctx.Get(names.Fullname(fnNode, a.source))
}

// visitCall records a call and the accesses its arguments perform.
// selfTarget, when non-empty, is the name the constructed instance is
// bound to when the callee is a class.
func (a *functionAnalyser) visitCall(call *tree_sitter.Node, selfTarget string) error {
	fnNode := call.ChildByFieldName("function")
	argsNode := call.ChildByFieldName("arguments")
	if fnNode == nil {
		return nil
	}

	if fnNode.Kind() == "identifier" {
		if name := parser.NodeText(fnNode, a.source); names.AttrBuiltins[name] {
			return a.visitAttrBuiltin(name, call, argsNode)
		}
	}

	// Callee side-effects first: a chained call like f().g() records the
	// inner call, a method call records a get on the receiver chain.
	switch fnNode.Kind() {
	case "call":
		if err := a.visitCall(fnNode, ""); err != nil {
			return err
		}
	case "attribute":
		basename, fullname := names.Pair(fnNode, a.source)
		a.ctx.ResolveAccess(basename, false, context.PosOf(fnNode))
		a.ir.Gets.Add(symbol.Name{Name: fullname, Basename: basename})
	case "identifier", "keyword_identifier":
		a.ctx.ResolveAccess(parser.NodeText(fnNode, a.source), false, context.PosOf(fnNode))
	case "subscript", "lambda", "parenthesized_expression":
		if err := a.visitExpr(fnNode); err != nil {
			return err
		}
	}

	args, err := a.visitCallArgs(argsNode)
	if err != nil {
		return err
	}

	_, calleeName := names.Pair(call, a.source)
	target := a.ctx.GetCallTarget(calleeName, context.PosOf(call))

	if _, isClass := target.(*symbol.Class); isClass {
		if selfTarget == "" {
			selfTarget = LocalResultName
		}
		args.Args = append([]string{selfTarget}, args.Args...)
	}

	a.ir.AddCall(&symbol.Call{Name: calleeName, Args: args, Target: target})
	return nil
}

// visitCallArgs collects the canonical argument names of a call, visiting
// each argument expression for its own accesses.
func (a *functionAnalyser) visitCallArgs(argsNode *tree_sitter.Node) (symbol.CallArgs, error) {
	args := symbol.NewCallArgs()
	if argsNode == nil {
		return args, nil
	}
	for _, arg := range parser.NamedChildren(argsNode) {
		switch arg.Kind() {
		case "keyword_argument":
			name := parser.FieldText(arg, "name", a.source)
			value := arg.ChildByFieldName("value")
			args.Kwargs[name] = names.Fullname(value, a.source)
			if err := a.visitExpr(value); err != nil {
				return args, err
			}
		case "comment":
			// skip
		default:
			args.Args = append(args.Args, names.Fullname(arg, a.source))
			if err := a.visitExpr(arg); err != nil {
				return args, err
			}
		}
	}
	return args, nil
}

// visitAttrBuiltin folds a literal getattr/setattr/delattr/hasattr call
// into the equivalent direct access. No call is recorded.
func (a *functionAnalyser) visitAttrBuiltin(
	builtin string,
	call *tree_sitter.Node,
	argsNode *tree_sitter.Node,
) error {
	argNodes := parser.NamedChildren(argsNode)
	pos := context.PosOf(call)

	if len(argNodes) < 2 {
		return a.led.Error(
			fmt.Sprintf("%s expects at least an object and an attribute name", builtin), pos)
	}

	objBase, objFull := names.Pair(argNodes[0], a.source)
	attr, ok := names.StringLiteral(argNodes[1], a.source)
	if !ok {
		if err := a.led.Error(
			fmt.Sprintf("%s attribute name must be a string literal", builtin), pos,
		); err != nil {
			return err
		}
		attr = "<" + strings.TrimSpace(parser.NodeText(argNodes[1], a.source)) + ">"
	}
	fullname := objFull + "." + attr

	// The object expression may itself perform accesses, e.g. a nested
	// getattr or a call.
	if argNodes[0].Kind() == "call" {
		if err := a.visitExpr(argNodes[0]); err != nil {
			return err
		}
	} else {
		a.ctx.ResolveAccess(objBase, builtin == "setattr", context.PosOf(argNodes[0]))
	}

	switch builtin {
	case "getattr", "hasattr":
		a.ir.Gets.Add(symbol.Name{Name: fullname, Basename: objBase})
		// getattr default value
		for _, extra := range argNodes[2:] {
			if err := a.visitExpr(extra); err != nil {
				return err
			}
		}
	case "setattr":
		a.ir.Sets.Add(symbol.Name{Name: fullname, Basename: objBase})
		for _, extra := range argNodes[2:] {
			if err := a.visitExpr(extra); err != nil {
				return err
			}
		}
	case "delattr":
		a.ir.Dels.Add(symbol.Name{Name: fullname, Basename: objBase})
	}
	return nil
}
