package loader

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/SuadeLabs/rattr/internal/analyser"
	"github.com/SuadeLabs/rattr/internal/config"
	"github.com/SuadeLabs/rattr/internal/ir"
	"github.com/SuadeLabs/rattr/internal/ledger"
	"github.com/SuadeLabs/rattr/internal/symbol"
)

// Loader analyses the transitive imports of a target file. Each module is
// analysed at most once per run; a cycle between modules terminates on the
// memoised entry.
type Loader struct {
	cfg    *config.Config
	led    *ledger.Ledger
	loc    *Locator
	byPath map[string]*ir.FileIR
}

// New creates a loader over the given locator.
func New(cfg *config.Config, led *ledger.Ledger, loc *Locator) *Loader {
	return &Loader{
		cfg:    cfg,
		led:    led,
		loc:    loc,
		byPath: make(map[string]*ir.FileIR),
	}
}

// Locator exposes the loader's module finder for root-context building.
func (l *Loader) Locator() *Locator { return l.loc }

// Paths returns every module file read while following imports, sorted.
func (l *Loader) Paths() []string {
	out := make([]string, 0, len(l.byPath))
	for path := range l.byPath {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// FollowImports analyses every import of fir reachable within the
// configured follow level and returns their IRs keyed by module name.
func (l *Loader) FollowImports(fir *ir.FileIR) (ir.ImportsIR, error) {
	imports := make(ir.ImportsIR)
	if err := l.follow(fir, imports); err != nil {
		return nil, err
	}
	return imports, nil
}

func (l *Loader) follow(fir *ir.FileIR, imports ir.ImportsIR) error {
	for _, imp := range fir.Context.Imports() {
		if err := l.followOne(fir, imp, imports); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) followOne(fir *ir.FileIR, imp symbol.Import, imports ir.ImportsIR) error {
	if imp.Module == "" {
		return nil
	}
	if l.cfg.IsExcludedImport(imp.Module) {
		l.led.Info(fmt.Sprintf("import %q is excluded", imp.Module), ledger.Pos{})
		return nil
	}
	if !l.shouldFollow(imp.Origin) {
		if imp.Origin == symbol.OriginStdlib {
			l.led.Info(
				fmt.Sprintf("stdlib module %q is not followed at this level", imp.Module),
				ledger.Pos{})
		}
		return nil
	}
	if imp.Path == "" {
		if imp.Origin == symbol.OriginStdlib {
			l.led.Info(
				fmt.Sprintf("no source found for stdlib module %q", imp.Module), ledger.Pos{})
			return nil
		}
		return l.led.Error(
			fmt.Sprintf("unable to locate module %q", imp.Module), ledger.Pos{})
	}

	if loaded, ok := l.byPath[imp.Path]; ok {
		// nil marks a module currently being followed further up the
		// stack; its entry lands when that frame completes.
		if loaded != nil {
			imports[imp.Module] = loaded
			if isStarred(imp) {
				l.expandStarred(fir, imp, loaded)
			}
		}
		return nil
	}
	// Reserve before descending so an import cycle terminates.
	l.byPath[imp.Path] = nil

	source, err := os.ReadFile(imp.Path)
	if err != nil {
		return l.led.Error(
			fmt.Sprintf("unable to read module %q: %v", imp.Module, err), ledger.Pos{})
	}

	moduleIR, err := analyser.AnalyseFile(source, imp.Path, l.led, l.loc, l.cfg)
	if err != nil {
		// A fatal record in an imported module degrades the importer's
		// results; it does not abort the importer.
		if errors.Is(err, ledger.ErrFatal) {
			l.led.Warning(
				fmt.Sprintf("module %q could not be analysed; its results are omitted",
					imp.Module),
				ledger.Pos{})
			return nil
		}
		return err
	}

	l.byPath[imp.Path] = moduleIR
	imports[imp.Module] = moduleIR
	if isStarred(imp) {
		l.expandStarred(fir, imp, moduleIR)
	}
	return l.follow(moduleIR, imports)
}

func isStarred(imp symbol.Import) bool {
	return imp.Name == "*" || strings.HasSuffix(imp.Qualified, ".*")
}

// expandStarred rebinds every module-level callable of a star-imported
// module into the importer's root context, qualified so later resolution
// can find the defining module.
func (l *Loader) expandStarred(fir *ir.FileIR, imp symbol.Import, moduleIR *ir.FileIR) {
	l.led.Warning(
		fmt.Sprintf("starred import of %q binds all of its public names", imp.Module),
		ledger.Pos{})
	root := fir.Context.Root()
	for _, sym := range moduleIR.Context.Symbols() {
		name := sym.SymbolName()
		if name == "" || strings.HasPrefix(name, "_") {
			continue
		}
		switch sym.(type) {
		case *symbol.Func, *symbol.Class:
			if !root.Declares(name) {
				root.Add(symbol.Import{
					Name:      name,
					Qualified: imp.Module + "." + name,
					Module:    imp.Module,
					Path:      imp.Path,
					Origin:    imp.Origin,
				})
			}
		}
	}
}

// shouldFollow gates following by origin against the configured level.
func (l *Loader) shouldFollow(origin symbol.Origin) bool {
	switch origin {
	case symbol.OriginLocal:
		return l.cfg.FollowImports >= config.FollowLocal
	case symbol.OriginSitePackages:
		return l.cfg.FollowImports >= config.FollowSitePackages
	case symbol.OriginStdlib:
		return l.cfg.FollowImports >= config.FollowStdlib
	default:
		return l.cfg.FollowImports >= config.FollowLocal
	}
}
