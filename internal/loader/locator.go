// Package loader locates and follows imports, producing the IR of every
// module reachable from a target file within the configured follow level.
package loader

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/SuadeLabs/rattr/internal/symbol"
)

// Locator maps dotted module names to files on disk. Search roots are
// tried in order; site-packages directories are tried after them and tag
// their hits accordingly.
type Locator struct {
	Roots        []string
	SitePackages []string
}

// NewLocator builds a locator whose first root is the directory of the
// target file.
func NewLocator(targetFile string, extraRoots, sitePackages []string) *Locator {
	roots := []string{filepath.Dir(targetFile)}
	roots = append(roots, extraRoots...)
	return &Locator{Roots: roots, SitePackages: sitePackages}
}

// FindModule resolves a dotted module name to a source path and origin.
// Stdlib modules are recognised by name even when no source is on disk; an
// empty path with ok=true marks such a module.
func (l *Locator) FindModule(dotted string) (string, symbol.Origin, bool) {
	if dotted == "" {
		return "", symbol.OriginUnknown, false
	}
	rel := filepath.Join(strings.Split(dotted, ".")...)
	for _, root := range l.Roots {
		if path, ok := moduleFile(filepath.Join(root, rel)); ok {
			return path, symbol.OriginLocal, true
		}
	}
	for _, site := range l.SitePackages {
		if path, ok := moduleFile(filepath.Join(site, rel)); ok {
			return path, symbol.OriginSitePackages, true
		}
	}
	top := dotted
	if i := strings.IndexByte(top, '.'); i >= 0 {
		top = top[:i]
	}
	if stdlibModules[top] {
		return "", symbol.OriginStdlib, true
	}
	return "", symbol.OriginUnknown, false
}

// ModuleOf splits a dotted name into the longest locatable module prefix
// and the remainder. "from pkg.mod import fn" resolves "pkg.mod.fn" to
// ("pkg.mod", "fn"); "import pkg.mod" resolves to ("pkg.mod", "").
func (l *Locator) ModuleOf(dotted string) (string, string) {
	parts := strings.Split(dotted, ".")
	for i := len(parts); i > 0; i-- {
		prefix := strings.Join(parts[:i], ".")
		if _, _, ok := l.FindModule(prefix); ok {
			return prefix, strings.Join(parts[i:], ".")
		}
	}
	if i := strings.LastIndexByte(dotted, '.'); i >= 0 {
		return dotted[:i], dotted[i+1:]
	}
	return dotted, ""
}

func moduleFile(base string) (string, bool) {
	for _, candidate := range []string{base + ".py", filepath.Join(base, "__init__.py")} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}
