package simplify

import (
	"strings"

	"github.com/SuadeLabs/rattr/internal/ir"
	"github.com/SuadeLabs/rattr/internal/names"
	"github.com/SuadeLabs/rattr/internal/symbol"
)

// nodeRef identifies one analysed callable: the file IR it lives in plus
// its symbol.
type nodeRef struct {
	fir *ir.FileIR
	sym symbol.Symbol
}

// resolveCall finds the analysed callable a call ultimately targets,
// following import re-export chains across files. ok is false for builtin,
// procedural-parameter and unresolved targets.
func (s *Simplifier) resolveCall(fir *ir.FileIR, call *symbol.Call) (nodeRef, bool) {
	switch target := call.Target.(type) {
	case *symbol.Func, *symbol.Class:
		if _, ok := fir.Functions[call.Target]; ok {
			return nodeRef{fir: fir, sym: call.Target}, true
		}
		// The symbol may belong to a followed module whose IR holds it.
		for _, module := range s.imports.SortedModules() {
			moduleIR := s.imports[module]
			if moduleIR == nil {
				continue
			}
			if _, ok := moduleIR.Functions[call.Target]; ok {
				return nodeRef{fir: moduleIR, sym: call.Target}, true
			}
		}
		return nodeRef{}, false
	case symbol.Import:
		return s.resolveImported(target, call.Name, map[string]bool{})
	default:
		return nodeRef{}, false
	}
}

// resolveImported looks a called name up in the module an import points
// at, following further imports on re-export.
func (s *Simplifier) resolveImported(
	imp symbol.Import,
	callName string,
	seen map[string]bool,
) (nodeRef, bool) {
	if seen[imp.Qualified] {
		return nodeRef{}, false
	}
	seen[imp.Qualified] = true

	moduleIR, ok := s.imports[imp.Module]
	if !ok || moduleIR == nil {
		return nodeRef{}, false
	}

	local := importedName(imp, callName)
	if local == "" {
		return nodeRef{}, false
	}

	sym := moduleIR.Context.Get(local)
	switch target := sym.(type) {
	case *symbol.Func, *symbol.Class:
		if _, ok := moduleIR.Functions[sym]; ok {
			return nodeRef{fir: moduleIR, sym: sym}, true
		}
		return nodeRef{}, false
	case symbol.Import:
		return s.resolveImported(target, local+"()", seen)
	default:
		return nodeRef{}, false
	}
}

// importedName maps a call name in the importing file to the local name in
// the imported module. "import m" + "m.f()" resolves to "f";
// "from m import f" + "f()" resolves to "f".
func importedName(imp symbol.Import, callName string) string {
	called := names.RemoveCallBrackets(names.StripAccessors(callName))

	qualified := strings.TrimSuffix(imp.Qualified, ".*")
	if called == imp.Name || imp.Name == "*" {
		// Aliased or starred binding: the qualified name carries the
		// real location.
		if rest := strings.TrimPrefix(qualified, imp.Module+"."); rest != qualified {
			return rest
		}
		return called
	}
	if rest := strings.TrimPrefix(called, imp.Name+"."); rest != called {
		// Attribute access through the bound module name.
		return rest
	}
	return ""
}
