package simplify

import (
	"fmt"

	"github.com/SuadeLabs/rattr/internal/ir"
	"github.com/SuadeLabs/rattr/internal/ledger"
	"github.com/SuadeLabs/rattr/internal/symbol"
)

// MaxIterations bounds the fixed-point iteration over one recursive call
// group. A group still changing after this many rounds is reported and
// left at its last approximation.
const MaxIterations = 32

// Simplifier folds callee accesses into callers across the target file and
// every followed module.
type Simplifier struct {
	target  *ir.FileIR
	imports ir.ImportsIR
	led     *ledger.Ledger
	results map[symbol.Symbol]*ir.FunctionIR
}

// New creates a simplifier over a target file and its followed imports.
func New(target *ir.FileIR, imports ir.ImportsIR, led *ledger.Ledger) *Simplifier {
	return &Simplifier{
		target:  target,
		imports: imports,
		led:     led,
		results: make(map[symbol.Symbol]*ir.FunctionIR),
	}
}

// Simplify computes the simplified IR of every known callable and returns
// the map keyed by symbol. Re-running on already-simplified results is a
// no-op: the computation is a fixed point.
func (s *Simplifier) Simplify() (map[symbol.Symbol]*ir.FunctionIR, error) {
	nodes := s.collectNodes()
	for _, scc := range s.stronglyConnected(nodes) {
		if err := s.simplifyGroup(scc); err != nil {
			return nil, err
		}
	}
	return s.results, nil
}

// Result returns the simplified IR of one callable, nil when unknown.
func (s *Simplifier) Result(sym symbol.Symbol) *ir.FunctionIR {
	return s.results[sym]
}

// collectNodes gathers every analysed callable, target file first, then
// followed modules in name order.
func (s *Simplifier) collectNodes() []nodeRef {
	var nodes []nodeRef
	for _, sym := range s.target.SortedSymbols() {
		nodes = append(nodes, nodeRef{fir: s.target, sym: sym})
	}
	for _, module := range s.imports.SortedModules() {
		moduleIR := s.imports[module]
		if moduleIR == nil || moduleIR == s.target {
			continue
		}
		for _, sym := range moduleIR.SortedSymbols() {
			nodes = append(nodes, nodeRef{fir: moduleIR, sym: sym})
		}
	}
	return nodes
}

// simplifyGroup resolves one strongly connected group of callables. A
// group of one with no self call folds its callees directly; a recursive
// group iterates until its name sets stop growing.
func (s *Simplifier) simplifyGroup(group []nodeRef) error {
	inGroup := make(map[symbol.Symbol]bool, len(group))
	for _, n := range group {
		inGroup[n.sym] = true
	}

	for _, n := range group {
		s.results[n.sym] = n.fir.Functions[n.sym].Copy()
	}

	for round := 0; ; round++ {
		changed := false
		for _, n := range group {
			next := n.fir.Functions[n.sym].Copy()
			if err := s.foldCalls(n, next); err != nil {
				return err
			}
			if !next.Equal(s.results[n.sym]) {
				changed = true
			}
			s.results[n.sym] = next
		}
		if !changed {
			return nil
		}
		if round+1 >= MaxIterations {
			s.led.Warning(
				fmt.Sprintf("recursive call group of %d did not stabilise after %d rounds",
					len(group), MaxIterations),
				ledger.Pos{})
			return nil
		}
	}
}

// foldCalls merges the current simplified results of every resolvable
// callee of n into dst, with parameters bound to call-site arguments.
func (s *Simplifier) foldCalls(n nodeRef, dst *ir.FunctionIR) error {
	base := n.fir.Functions[n.sym]
	for _, call := range base.Calls {
		callee, ok := s.resolveCall(n.fir, call)
		if !ok {
			continue
		}
		calleeResult := s.results[callee.sym]
		if calleeResult == nil {
			continue
		}
		iface := interfaceOf(callee.sym)
		swaps, err := constructSwaps(iface, call.Args, call.Name, s.led)
		if err != nil {
			return err
		}
		dst.Union(partiallyUnbind(calleeResult, swaps))
	}
	return nil
}

func interfaceOf(sym symbol.Symbol) symbol.CallInterface {
	switch t := sym.(type) {
	case *symbol.Func:
		return t.Interface
	case *symbol.Class:
		return t.Interface
	default:
		return symbol.CallInterface{}
	}
}

// stronglyConnected returns Tarjan's strongly connected components over
// the call graph, emitted callee-first so every group sees its callees'
// final results.
func (s *Simplifier) stronglyConnected(nodes []nodeRef) [][]nodeRef {
	t := &tarjan{
		s:       s,
		index:   make(map[symbol.Symbol]int),
		lowlink: make(map[symbol.Symbol]int),
		onStack: make(map[symbol.Symbol]bool),
		nodeOf:  make(map[symbol.Symbol]nodeRef),
	}
	for _, n := range nodes {
		t.nodeOf[n.sym] = n
	}
	for _, n := range nodes {
		if _, seen := t.index[n.sym]; !seen {
			t.visit(n)
		}
	}
	return t.sccs
}

type tarjan struct {
	s       *Simplifier
	counter int
	index   map[symbol.Symbol]int
	lowlink map[symbol.Symbol]int
	onStack map[symbol.Symbol]bool
	stack   []nodeRef
	nodeOf  map[symbol.Symbol]nodeRef
	sccs    [][]nodeRef
}

func (t *tarjan) visit(n nodeRef) {
	t.index[n.sym] = t.counter
	t.lowlink[n.sym] = t.counter
	t.counter++
	t.stack = append(t.stack, n)
	t.onStack[n.sym] = true

	for _, call := range n.fir.Functions[n.sym].Calls {
		callee, ok := t.s.resolveCall(n.fir, call)
		if !ok {
			continue
		}
		if _, known := t.nodeOf[callee.sym]; !known {
			continue
		}
		if _, seen := t.index[callee.sym]; !seen {
			t.visit(callee)
			t.lowlink[n.sym] = min(t.lowlink[n.sym], t.lowlink[callee.sym])
		} else if t.onStack[callee.sym] {
			t.lowlink[n.sym] = min(t.lowlink[n.sym], t.index[callee.sym])
		}
	}

	if t.lowlink[n.sym] == t.index[n.sym] {
		var scc []nodeRef
		for {
			top := t.stack[len(t.stack)-1]
			t.stack = t.stack[:len(t.stack)-1]
			t.onStack[top.sym] = false
			scc = append(scc, top)
			if top.sym == n.sym {
				break
			}
		}
		t.sccs = append(t.sccs, scc)
	}
}
