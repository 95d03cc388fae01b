// Package context implements the scope-chain symbol table used for
// name-origin resolution during visitation.
package context

import (
	"strings"

	"github.com/SuadeLabs/rattr/internal/ledger"
	"github.com/SuadeLabs/rattr/internal/names"
	"github.com/SuadeLabs/rattr/internal/symbol"
)

// ScopeKind distinguishes the lexical scopes a Context can model.
type ScopeKind int

const (
	ScopeModule ScopeKind = iota
	ScopeClass
	ScopeFunction
	ScopeComprehension
)

// Context is one scope in the chain. Lookup walks the chain innermost-first;
// class scopes are skipped for plain name resolution from nested scopes
// (class bodies do not contribute to enclosing function scoping).
type Context struct {
	parent  *Context
	kind    ScopeKind
	symbols map[string]symbol.Symbol
	// arguments are the names declared as formal parameters in this scope.
	arguments map[string]bool
	// globals / nonlocals redirect writes in this scope to an outer scope.
	// Populated by a declaration pre-pass before any statement is visited.
	globals   map[string]bool
	nonlocals map[string]bool

	file   string
	ledger *ledger.Ledger
}

// NewRoot creates a module-level context.
func NewRoot(file string, led *ledger.Ledger) *Context {
	return &Context{
		kind:      ScopeModule,
		symbols:   make(map[string]symbol.Symbol),
		arguments: make(map[string]bool),
		globals:   make(map[string]bool),
		nonlocals: make(map[string]bool),
		file:      file,
		ledger:    led,
	}
}

// Child pushes a new scope of the given kind onto the chain.
func (c *Context) Child(kind ScopeKind) *Context {
	return &Context{
		parent:    c,
		kind:      kind,
		symbols:   make(map[string]symbol.Symbol),
		arguments: make(map[string]bool),
		globals:   make(map[string]bool),
		nonlocals: make(map[string]bool),
		file:      c.file,
		ledger:    c.ledger,
	}
}

// Root returns the module-level context of the chain.
func (c *Context) Root() *Context {
	if c.parent == nil {
		return c
	}
	return c.parent.Root()
}

// File returns the source path this context chain belongs to.
func (c *Context) File() string { return c.file }

// Ledger returns the ledger diagnostics are recorded to.
func (c *Context) Ledger() *ledger.Ledger { return c.ledger }

// MarkGlobal redirects writes of name in this scope to the module scope.
func (c *Context) MarkGlobal(name string) { c.globals[name] = true }

// MarkNonlocal redirects writes of name in this scope to the nearest
// enclosing function scope declaring it.
func (c *Context) MarkNonlocal(name string) { c.nonlocals[name] = true }

// IsGlobalDeclared reports whether name was declared global in this scope.
func (c *Context) IsGlobalDeclared(name string) bool { return c.globals[name] }

// Add binds a symbol in this scope. Writes to names declared global or
// nonlocal are redirected to the declared outer scope instead of creating a
// new local.
func (c *Context) Add(sym symbol.Symbol) {
	name := sym.SymbolName()
	base := rootOf(name)

	if c.globals[base] {
		c.Root().symbols[name] = sym
		return
	}
	if c.nonlocals[base] {
		if outer := c.enclosingFunctionDeclaring(base); outer != nil {
			outer.symbols[name] = sym
			return
		}
	}
	c.symbols[name] = sym
}

// AddArgument binds a formal parameter in this scope.
func (c *Context) AddArgument(name string) {
	c.symbols[name] = symbol.NewName(name)
	c.arguments[name] = true
}

// IsArgument reports whether name is a formal parameter of this scope.
func (c *Context) IsArgument(name string) bool {
	return c.arguments[name]
}

// Remove unbinds a name from the nearest scope declaring it.
func (c *Context) Remove(name string) {
	if _, ok := c.symbols[name]; ok {
		delete(c.symbols, name)
		return
	}
	if c.parent != nil {
		c.parent.Remove(name)
	}
}

// Get returns the symbol for name, walking the chain innermost-first and
// skipping class scopes when the lookup originates below them. Builtins
// resolve last. Returns nil when unresolved.
func (c *Context) Get(name string) symbol.Symbol {
	if sym := c.lookup(name, false); sym != nil {
		return sym
	}
	if symbol.IsBuiltin(name) {
		return symbol.Builtin{Name: name}
	}
	return nil
}

func (c *Context) lookup(name string, fromBelow bool) symbol.Symbol {
	if !(fromBelow && c.kind == ScopeClass) {
		if sym, ok := c.symbols[name]; ok {
			return sym
		}
	}
	if c.parent == nil {
		return nil
	}
	return c.parent.lookup(name, true)
}

// Declares reports whether name is bound in this scope specifically.
func (c *Context) Declares(name string) bool {
	_, ok := c.symbols[name]
	return ok
}

// Contains reports whether name is bound in this scope or an ancestor, or
// is a builtin.
func (c *Context) Contains(name string) bool {
	return c.Get(name) != nil
}

// IsImport reports whether name resolves to an import.
func (c *Context) IsImport(name string) bool {
	_, ok := c.Get(name).(symbol.Import)
	return ok
}

// Symbols returns the symbols declared in this scope, unordered.
func (c *Context) Symbols() []symbol.Symbol {
	out := make([]symbol.Symbol, 0, len(c.symbols))
	for _, sym := range c.symbols {
		out = append(out, sym)
	}
	return out
}

// Imports returns the imports declared in this scope.
func (c *Context) Imports() []symbol.Import {
	var out []symbol.Import
	for _, sym := range c.symbols {
		if imp, ok := sym.(symbol.Import); ok {
			out = append(out, imp)
		}
	}
	return out
}

func (c *Context) enclosingFunctionDeclaring(name string) *Context {
	for scope := c.parent; scope != nil; scope = scope.parent {
		if scope.kind != ScopeFunction {
			continue
		}
		if scope.Declares(name) {
			return scope
		}
	}
	return nil
}

// GetCallTarget resolves the target of a call with the given canonical name
// (ending in "()"). It returns nil for opaque targets; unresolvable targets
// record diagnostics per their likely cause.
func (c *Context) GetCallTarget(callee string, pos ledger.Pos) symbol.Symbol {
	name := names.RemoveCallBrackets(callee)
	name = strings.ReplaceAll(name, "*", "")
	stripped := names.StripAccessors(name)

	if strings.HasPrefix(stripped, names.SyntheticPrefix) {
		return nil
	}

	target := c.Get(name)

	// Method on some LHS in context, but not a call to an implicitly
	// imported function.
	lhsTarget := c.Get(rootOf(stripped))
	if target == nil {
		if _, isImport := lhsTarget.(symbol.Import); !isImport {
			target = lhsTarget
		}
	}

	// Implicit import: `import math` binds "math", a call to "math.pi()"
	// must resolve through the module binding.
	if target == nil {
		for _, module := range possibleModuleNames(stripped) {
			sym := c.Get(module)
			if sym == nil {
				continue
			}
			if imp, ok := sym.(symbol.Import); ok {
				local := strings.TrimPrefix(name, imp.Name+".")
				target = symbol.Import{
					Name:      name,
					Qualified: imp.Qualified + "." + local,
					Module:    imp.Module,
					Path:      imp.Path,
					Origin:    imp.Origin,
				}
			} else {
				target = sym
			}
			break
		}
	}

	switch target.(type) {
	case nil:
		if !symbol.IsMethodOnPrimitive(name) {
			_ = c.ledger.Error("unable to resolve call to '"+name+"'", pos)
		}
		return nil
	case *symbol.Func, *symbol.Class, symbol.Import, symbol.Builtin:
		if strings.HasSuffix(callee, "()()") {
			c.ledger.Warning("unable to resolve call result of call", pos)
		}
		return target
	default:
		// A Name: a procedural parameter or a method on a local value.
		if !strings.Contains(callee, ".") && c.Declares(stripped) {
			_ = c.ledger.Error(
				"unable to resolve call to '"+name+"', likely a procedural parameter", pos)
		} else if strings.Contains(callee, ".") {
			c.ledger.Info("unable to resolve call to method '"+name+"'", pos)
		} else {
			_ = c.ledger.Error("'"+name+"' is not callable", pos)
		}
		return nil
	}
}

// ResolveAccess resolves the basename of an access, warning once for names
// that are neither declared, parameters, nor synthesized (late-bound or
// dynamically introduced names degrade, they never abort).
func (c *Context) ResolveAccess(basename string, isAssignment bool, pos ledger.Pos) {
	if isAssignment || strings.HasPrefix(basename, names.SyntheticPrefix) {
		return
	}
	if !c.Contains(basename) {
		c.ledger.Warning("'"+basename+"' potentially undefined", pos)
	}
}

// possibleModuleNames returns the module prefixes of a dotted name, most
// specific first: "a.b.c" -> ["a.b.c", "a.b", "a"].
func possibleModuleNames(name string) []string {
	parts := strings.Split(name, ".")
	out := make([]string, 0, len(parts))
	for i := len(parts); i >= 1; i-- {
		out = append(out, strings.Join(parts[:i], "."))
	}
	return out
}

func rootOf(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}
