// Package simplify folds callee accesses into their callers by binding
// formal parameters to the arguments at each call site, iterating
// recursive call groups to a fixed point.
package simplify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SuadeLabs/rattr/internal/ir"
	"github.com/SuadeLabs/rattr/internal/ledger"
	"github.com/SuadeLabs/rattr/internal/names"
	"github.com/SuadeLabs/rattr/internal/symbol"
)

// Names bound to star parameters: the callee sees a fresh container, not
// the caller's names.
const (
	varargSwap = "@Tuple"
	kwargSwap  = "@Dict"
)

// constructSwaps maps each formal parameter of iface to the argument bound
// to it at one call site. Unmatched parameters stay unswapped.
func constructSwaps(
	iface symbol.CallInterface,
	args symbol.CallArgs,
	callName string,
	led *ledger.Ledger,
) (map[string]string, error) {
	swaps := make(map[string]string, len(args.Args)+len(args.Kwargs))

	for i, arg := range args.Args {
		if i < len(iface.Params) {
			swaps[iface.Params[i]] = arg
			continue
		}
		if iface.Vararg != "" {
			swaps[iface.Vararg] = varargSwap
			continue
		}
		return swaps, led.Error(
			fmt.Sprintf("%s got too many positional arguments", callName), ledger.Pos{})
	}

	for _, kw := range sortedKeys(args.Kwargs) {
		value := args.Kwargs[kw]
		switch {
		case iface.Has(kw):
			if _, dup := swaps[kw]; dup {
				return swaps, led.Error(
					fmt.Sprintf("%s got multiple values for argument %q", callName, kw),
					ledger.Pos{})
			}
			swaps[kw] = value
		case iface.Kwarg != "":
			swaps[iface.Kwarg] = kwargSwap
		default:
			return swaps, led.Error(
				fmt.Sprintf("%s got an unexpected keyword argument %q", callName, kw),
				ledger.Pos{})
		}
	}
	return swaps, nil
}

// partiallyUnbindName rewrites one canonical name under swaps: the leading
// identifier is replaced when it is a swapped parameter, the accessor
// suffix and any leading stars are preserved.
func partiallyUnbindName(name string, swaps map[string]string) string {
	prefix := ""
	rest := name
	for strings.HasPrefix(rest, "*") {
		prefix += "*"
		rest = rest[1:]
	}
	head := rest
	suffix := ""
	if i := strings.IndexAny(rest, ".[("); i >= 0 {
		head, suffix = rest[:i], rest[i:]
	}
	if replacement, ok := swaps[head]; ok {
		return prefix + replacement + suffix
	}
	return name
}

// partiallyUnbind applies swaps to every name of a callee's IR, producing
// the accesses as seen from the caller. Calls are not propagated; each
// function's own calls are resolved at its own node.
func partiallyUnbind(callee *ir.FunctionIR, swaps map[string]string) *ir.FunctionIR {
	out := ir.NewFunctionIR()
	unbindSet(callee.Gets, swaps, out.Gets)
	unbindSet(callee.Sets, swaps, out.Sets)
	unbindSet(callee.Dels, swaps, out.Dels)
	return out
}

func unbindSet(src ir.NameSet, swaps map[string]string, dst ir.NameSet) {
	for _, n := range src {
		unbound := partiallyUnbindName(n.Name, swaps)
		dst.Add(symbol.Name{Name: unbound, Basename: names.StripAccessors(unbound)})
	}
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
