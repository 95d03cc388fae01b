// Package ir holds the intermediate results of analysing a file: per
// function, the sets of attribute accesses it performs and the calls it
// makes.
package ir

import (
	"sort"

	"github.com/SuadeLabs/rattr/internal/context"
	"github.com/SuadeLabs/rattr/internal/symbol"
)

// NameSet is an unordered set of accessed names keyed by canonical
// fullname.
type NameSet map[string]symbol.Name

// Add inserts a name, keeping the first basename recorded for a fullname.
func (s NameSet) Add(n symbol.Name) {
	if _, ok := s[n.Name]; !ok {
		s[n.Name] = n
	}
}

// Has reports membership by fullname.
func (s NameSet) Has(fullname string) bool {
	_, ok := s[fullname]
	return ok
}

// Union inserts every name of other into s.
func (s NameSet) Union(other NameSet) {
	for _, n := range other {
		s.Add(n)
	}
}

// Sorted returns the member names ordered by fullname.
func (s NameSet) Sorted() []symbol.Name {
	out := make([]symbol.Name, 0, len(s))
	for _, n := range s {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Copy returns a shallow copy of the set.
func (s NameSet) Copy() NameSet {
	out := make(NameSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// FunctionIR is the result of analysing one callable: the names it gets,
// sets and deletes, and the calls it makes in source order.
type FunctionIR struct {
	Gets  NameSet
	Sets  NameSet
	Dels  NameSet
	Calls []*symbol.Call
}

// NewFunctionIR returns an empty IR.
func NewFunctionIR() *FunctionIR {
	return &FunctionIR{
		Gets: make(NameSet),
		Sets: make(NameSet),
		Dels: make(NameSet),
	}
}

// AddCall appends a call, dropping exact duplicates (same callee, same
// arguments).
func (f *FunctionIR) AddCall(call *symbol.Call) {
	key := call.Key()
	for _, existing := range f.Calls {
		if existing.Key() == key {
			return
		}
	}
	f.Calls = append(f.Calls, call)
}

// Union merges the name sets and calls of other into f.
func (f *FunctionIR) Union(other *FunctionIR) {
	f.Gets.Union(other.Gets)
	f.Sets.Union(other.Sets)
	f.Dels.Union(other.Dels)
	for _, call := range other.Calls {
		f.AddCall(call)
	}
}

// Copy returns a deep copy of the name sets; calls are shared.
func (f *FunctionIR) Copy() *FunctionIR {
	out := &FunctionIR{
		Gets:  f.Gets.Copy(),
		Sets:  f.Sets.Copy(),
		Dels:  f.Dels.Copy(),
		Calls: make([]*symbol.Call, len(f.Calls)),
	}
	copy(out.Calls, f.Calls)
	return out
}

// Equal reports whether two IRs have identical name sets. Calls are not
// compared; the fixed point over recursive call graphs is on names.
func (f *FunctionIR) Equal(other *FunctionIR) bool {
	return sameSet(f.Gets, other.Gets) &&
		sameSet(f.Sets, other.Sets) &&
		sameSet(f.Dels, other.Dels)
}

func sameSet(a, b NameSet) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// FileIR is the analysis result of one file: the module context and the IR
// of every analysed callable, keyed by the symbol that defines it.
type FileIR struct {
	Context   *context.Context
	Functions map[symbol.Symbol]*FunctionIR
}

// NewFileIR returns an empty file IR over ctx.
func NewFileIR(ctx *context.Context) *FileIR {
	return &FileIR{
		Context:   ctx,
		Functions: make(map[symbol.Symbol]*FunctionIR),
	}
}

// Lookup finds the IR of the callable with the given symbol name.
func (f *FileIR) Lookup(name string) (symbol.Symbol, *FunctionIR, bool) {
	for sym, fnIR := range f.Functions {
		if sym.SymbolName() == name {
			return sym, fnIR, true
		}
	}
	return nil, nil, false
}

// SortedSymbols returns the analysed symbols ordered by name, for
// deterministic iteration.
func (f *FileIR) SortedSymbols() []symbol.Symbol {
	out := make([]symbol.Symbol, 0, len(f.Functions))
	for sym := range f.Functions {
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SymbolName() < out[j].SymbolName()
	})
	return out
}

// ImportsIR maps a module name to the IR of its file, for every import
// followed during analysis.
type ImportsIR map[string]*FileIR

// SortedModules returns the followed module names in order.
func (m ImportsIR) SortedModules() []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
