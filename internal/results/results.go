// Package results renders simplified IR as the tool's JSON output.
package results

import (
	"encoding/json"
	"io"

	"github.com/SuadeLabs/rattr/internal/config"
	"github.com/SuadeLabs/rattr/internal/ir"
	"github.com/SuadeLabs/rattr/internal/symbol"
)

// FunctionResults is the output entry for one callable.
type FunctionResults struct {
	Gets  []string `json:"gets"`
	Sets  []string `json:"sets"`
	Dels  []string `json:"dels"`
	Calls []string `json:"calls"`
}

// FileResults maps each callable of the target file to its results.
// Serialisation is deterministic: map keys and all lists are sorted.
type FileResults map[string]*FunctionResults

// Generate produces the results of the target file from the simplified
// IRs. Only the target's own callables appear; followed modules contribute
// through simplification, not as entries.
func Generate(
	target *ir.FileIR,
	simplified map[symbol.Symbol]*ir.FunctionIR,
	cfg *config.Config,
) FileResults {
	out := make(FileResults, len(target.Functions))
	for _, sym := range target.SortedSymbols() {
		name := sym.SymbolName()
		if cfg != nil && cfg.IsExcludedName(name) {
			continue
		}
		fnIR := simplified[sym]
		if fnIR == nil {
			fnIR = target.Functions[sym]
		}
		out[name] = fromIR(fnIR)
	}
	return out
}

func fromIR(fnIR *ir.FunctionIR) *FunctionResults {
	r := &FunctionResults{
		Gets:  sortedNames(fnIR.Gets),
		Sets:  sortedNames(fnIR.Sets),
		Dels:  sortedNames(fnIR.Dels),
		Calls: []string{},
	}
	// Calls keep source order; the IR already deduplicates them.
	seen := make(map[string]bool, len(fnIR.Calls))
	for _, call := range fnIR.Calls {
		if !seen[call.Name] {
			seen[call.Name] = true
			r.Calls = append(r.Calls, call.Name)
		}
	}
	return r
}

func sortedNames(set ir.NameSet) []string {
	out := make([]string, 0, len(set))
	for _, n := range set.Sorted() {
		out = append(out, n.Name)
	}
	return out
}

// Write serialises the results as indented JSON.
func (r FileResults) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Marshal returns the indented JSON encoding.
func (r FileResults) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
