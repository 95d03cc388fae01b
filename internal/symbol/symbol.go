// Package symbol defines the symbol model shared by the context, analysers
// and simplifier: named values, imports, functions, classes and call sites.
package symbol

import (
	"sort"
	"strings"

	"github.com/SuadeLabs/rattr/internal/names"
)

// Origin categorises where an imported module lives.
type Origin int

const (
	OriginUnknown Origin = iota
	OriginLocal
	OriginSitePackages
	OriginStdlib
	OriginBuiltin
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginSitePackages:
		return "site-packages"
	case OriginStdlib:
		return "stdlib"
	case OriginBuiltin:
		return "builtin"
	default:
		return "unknown"
	}
}

// Symbol is any entity a context can bind to an identifier.
type Symbol interface {
	// SymbolName is the name the symbol is keyed by in its context.
	SymbolName() string
}

// Name is a plain named value: a local, parameter, or attribute chain root.
type Name struct {
	Name     string // full canonical name, e.g. "a.b[]"
	Basename string // root identifier, e.g. "a"
}

// NewName builds a Name whose basename is derived from the full name.
func NewName(full string) Name {
	base := names.StripAccessors(full)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return Name{Name: full, Basename: base}
}

func (n Name) SymbolName() string { return n.Name }

// Builtin is a Python builtin callable or value.
type Builtin struct {
	Name string
}

func (b Builtin) SymbolName() string { return b.Name }

// Import binds a local name to a symbol from another module.
type Import struct {
	Name      string // local binding, e.g. "np" for "import numpy as np"
	Qualified string // fully qualified imported name, e.g. "numpy"
	Module    string // providing module, e.g. "numpy"
	Path      string // resolved source path, "" when not located
	Origin    Origin
}

func (i Import) SymbolName() string { return i.Name }

// CallInterface is a callable's formal parameter list.
type CallInterface struct {
	Params []string // positional (and keyword-capable) parameters, in order
	Vararg string   // *args name, "" when absent
	Kwarg  string   // **kwargs name, "" when absent
}

// All returns every formal parameter name.
func (ci CallInterface) All() []string {
	all := make([]string, 0, len(ci.Params)+2)
	all = append(all, ci.Params...)
	if ci.Vararg != "" {
		all = append(all, ci.Vararg)
	}
	if ci.Kwarg != "" {
		all = append(all, ci.Kwarg)
	}
	return all
}

// Has reports whether name is a formal parameter.
func (ci CallInterface) Has(name string) bool {
	for _, p := range ci.All() {
		if p == name {
			return true
		}
	}
	return false
}

// Func is a function or method definition.
type Func struct {
	Name      string // qualified within its module: "f", "Class.method"
	Interface CallInterface
	IsAsync   bool
	DefinedIn string // source path of the defining module
}

func (f *Func) SymbolName() string { return f.Name }

// Class is a class definition; it doubles as the target of "ClassName()"
// calls, with Interface taken from __init__ (including "self").
type Class struct {
	Name      string
	Interface CallInterface
	DefinedIn string
}

func (c *Class) SymbolName() string { return c.Name }

// CallArgs are the actual arguments used at one call site, as canonical
// names.
type CallArgs struct {
	Args   []string
	Kwargs map[string]string
}

// NewCallArgs returns an empty argument record.
func NewCallArgs() CallArgs {
	return CallArgs{Kwargs: make(map[string]string)}
}

// Call is one call site: the canonical callee name ("fn()", "a.method()"),
// the actual arguments, and the context-resolved target (nil when opaque).
type Call struct {
	Name   string
	Args   CallArgs
	Target Symbol
}

func (c *Call) SymbolName() string { return c.Name }

// Key returns a deduplication key covering the callee and its arguments.
func (c *Call) Key() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('(')
	b.WriteString(strings.Join(c.Args.Args, ","))
	if len(c.Args.Kwargs) > 0 {
		kws := make([]string, 0, len(c.Args.Kwargs))
		for k, v := range c.Args.Kwargs {
			kws = append(kws, k+"="+v)
		}
		sort.Strings(kws)
		b.WriteByte(';')
		b.WriteString(strings.Join(kws, ","))
	}
	b.WriteByte(')')
	return b.String()
}
