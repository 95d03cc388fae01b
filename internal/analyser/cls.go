package analyser

import (
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/SuadeLabs/rattr/internal/context"
	"github.com/SuadeLabs/rattr/internal/ir"
	"github.com/SuadeLabs/rattr/internal/names"
	"github.com/SuadeLabs/rattr/internal/parser"
	"github.com/SuadeLabs/rattr/internal/symbol"
)

// classAnalyser produces the IR entries a class contributes: the class
// itself as the target of "ClassName(...)" (its initialiser's accesses with
// self bound), plus one entry per method under "ClassName.method".
type classAnalyser struct {
	ctx    *context.Context
	fir    *ir.FileIR
	source []byte
	cls    *symbol.Class
}

func (f *fileAnalyser) analyseClass(node, decorated *tree_sitter.Node) error {
	name := parser.FieldText(node, "name", f.source)
	if f.cfg != nil && f.cfg.IsExcludedName(name) {
		f.led.Info(fmt.Sprintf("%q is excluded from analysis", name), context.PosOf(node))
		return nil
	}
	if annotationsOf(decorated, f.source).ignore {
		f.led.Info(fmt.Sprintf("%q is ignored by annotation", name), context.PosOf(node))
		return nil
	}

	sym := f.ctx.Get(name)
	cls, ok := sym.(*symbol.Class)
	if !ok {
		return nil
	}
	c := &classAnalyser{ctx: f.ctx, fir: f.fir, source: f.source, cls: cls}

	if c.isEnum(node) {
		return c.analyseEnum(node)
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	for _, stmt := range parser.NamedChildren(body) {
		def := stmt
		var decorated *tree_sitter.Node
		if stmt.Kind() == "decorated_definition" {
			decorated = stmt
			def = stmt.ChildByFieldName("definition")
		}
		switch {
		case def == nil:
			continue
		case def.Kind() == "function_definition":
			if err := c.analyseMethod(def, decorated); err != nil {
				return err
			}
		case def.Kind() == "expression_statement":
			c.registerClassAttributes(def)
		}
	}
	return nil
}

// registerClassAttributes binds class-level assignments as
// "ClassName.attr" so references to them resolve.
func (c *classAnalyser) registerClassAttributes(stmt *tree_sitter.Node) {
	for _, child := range parser.NamedChildren(stmt) {
		switch child.Kind() {
		case "assignment", "augmented_assignment":
			left := child.ChildByFieldName("left")
			for _, name := range context.UnravelTargets(left, c.source) {
				c.ctx.Add(symbol.NewName(c.cls.Name + "." + name))
			}
		}
	}
}

func (c *classAnalyser) analyseMethod(def, decorated *tree_sitter.Node) error {
	methodName := parser.FieldText(def, "name", c.source)
	qualified := c.cls.Name + "." + methodName
	iface := context.InterfaceOf(def.ChildByFieldName("parameters"), c.source)

	ann := annotationsOf(decorated, c.source)
	if ann.ignore {
		return nil
	}

	fn := &symbol.Func{
		Name:      qualified,
		Interface: iface,
		DefinedIn: c.ctx.File(),
	}
	c.ctx.Add(fn)

	var fnIR *ir.FunctionIR
	var err error
	if ann.results != nil {
		fnIR, err = resultsFromAnnotation(ann.results, c.source, c.ctx.Ledger())
		if err != nil {
			return err
		}
	}
	if fnIR == nil {
		fnIR, err = AnalyseFunction(def, fn, c.ctx, c.source)
		if err != nil {
			return err
		}
	}

	if methodName == "__init__" {
		// Calls to the class construct an instance: the class symbol
		// carries the initialiser's accesses, with self bound by the
		// caller.
		c.fir.Functions[c.cls] = fnIR
		return nil
	}
	c.fir.Functions[fn] = fnIR
	return nil
}

// analyseEnum registers an enum class: constructing a member reads the
// member table.
func (c *classAnalyser) analyseEnum(node *tree_sitter.Node) error {
	enumIR := ir.NewFunctionIR()
	body := node.ChildByFieldName("body")
	if body == nil {
		c.fir.Functions[c.cls] = enumIR
		return nil
	}
	for _, stmt := range parser.NamedChildren(body) {
		if stmt.Kind() != "expression_statement" {
			continue
		}
		for _, child := range parser.NamedChildren(stmt) {
			if child.Kind() != "assignment" {
				continue
			}
			left := child.ChildByFieldName("left")
			for _, member := range context.UnravelTargets(left, c.source) {
				full := c.cls.Name + "." + member
				c.ctx.Add(symbol.NewName(full))
				enumIR.Gets.Add(symbol.Name{Name: full, Basename: c.cls.Name})
			}
		}
	}
	c.fir.Functions[c.cls] = enumIR
	return nil
}

// isEnum reports whether a class inherits from enum.Enum (or a common
// variant) by base-class name.
func (c *classAnalyser) isEnum(node *tree_sitter.Node) bool {
	supers := node.ChildByFieldName("superclasses")
	if supers == nil {
		return false
	}
	for _, base := range parser.NamedChildren(supers) {
		switch lastSegment(names.Fullname(base, c.source)) {
		case "Enum", "IntEnum", "StrEnum", "Flag", "IntFlag":
			return true
		}
	}
	return false
}
