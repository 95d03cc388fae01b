package analyser

import (
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/SuadeLabs/rattr/internal/config"
	"github.com/SuadeLabs/rattr/internal/context"
	"github.com/SuadeLabs/rattr/internal/ir"
	"github.com/SuadeLabs/rattr/internal/ledger"
	"github.com/SuadeLabs/rattr/internal/parser"
	"github.com/SuadeLabs/rattr/internal/symbol"
)

type fileAnalyser struct {
	ctx    *context.Context
	fir    *ir.FileIR
	source []byte
	led    *ledger.Ledger
	cfg    *config.Config
}

// AnalyseFile parses one Python file and produces its IR: the module
// context plus the access sets of every callable defined at module level.
// The returned error is non-nil only when a fatal record aborted the file.
func AnalyseFile(
	source []byte,
	file string,
	led *ledger.Ledger,
	finder context.ModuleFinder,
	cfg *config.Config,
) (*ir.FileIR, error) {
	restore := led.EnterFile(file)
	defer restore()

	tree, err := parser.Parse(source)
	if err != nil {
		return nil, led.Fatal(err.Error(), ledger.Pos{})
	}
	defer tree.Close()

	root := tree.RootNode()
	if parser.HasErrors(root) {
		return nil, led.Fatal("file contains a syntax error", ledger.Pos{})
	}

	ctx := context.NewRootContext(root, source, file, led, finder)
	f := &fileAnalyser{
		ctx:    ctx,
		fir:    ir.NewFileIR(ctx),
		source: source,
		led:    led,
		cfg:    cfg,
	}
	if err := f.visitModuleStmts(parser.NamedChildren(root)); err != nil {
		return nil, err
	}
	return f.fir, nil
}

func (f *fileAnalyser) visitModuleStmts(stmts []*tree_sitter.Node) error {
	for _, stmt := range stmts {
		if err := f.visitModuleStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (f *fileAnalyser) visitModuleStmt(node *tree_sitter.Node) error {
	switch node.Kind() {
	case "function_definition":
		return f.analyseDef(node, nil)

	case "decorated_definition":
		def := node.ChildByFieldName("definition")
		if def == nil {
			return nil
		}
		if def.Kind() == "class_definition" {
			return f.analyseClass(def, node)
		}
		return f.analyseDef(def, node)

	case "class_definition":
		return f.analyseClass(node, nil)

	case "expression_statement":
		for _, child := range parser.NamedChildren(node) {
			if child.Kind() != "assignment" {
				continue
			}
			right := child.ChildByFieldName("right")
			if right != nil && right.Kind() == "lambda" {
				if err := f.analyseModuleLambda(child, right); err != nil {
					return err
				}
			}
		}
		return nil

	case "if_statement", "while_statement", "try_statement",
		"with_statement", "for_statement":
		// Definitions under module-level control flow still define.
		return f.visitCompound(node)

	default:
		return nil
	}
}

func (f *fileAnalyser) visitCompound(node *tree_sitter.Node) error {
	for _, child := range parser.NamedChildren(node) {
		switch child.Kind() {
		case "block":
			if err := f.visitModuleStmts(parser.NamedChildren(child)); err != nil {
				return err
			}
		case "elif_clause", "else_clause", "except_clause", "finally_clause":
			if err := f.visitCompound(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *fileAnalyser) analyseDef(def, decorated *tree_sitter.Node) error {
	name := parser.FieldText(def, "name", f.source)
	if name == "" {
		return nil
	}
	if f.cfg != nil && f.cfg.IsExcludedName(name) {
		f.led.Info(fmt.Sprintf("%q is excluded from analysis", name), context.PosOf(def))
		return nil
	}

	ann := annotationsOf(decorated, f.source)
	if ann.ignore {
		f.led.Info(fmt.Sprintf("%q is ignored by annotation", name), context.PosOf(def))
		return nil
	}

	sym := f.ctx.Get(name)
	fn, ok := sym.(*symbol.Func)
	if !ok {
		return nil
	}

	if ann.results != nil {
		fnIR, err := resultsFromAnnotation(ann.results, f.source, f.led)
		if err == nil && fnIR != nil {
			f.fir.Functions[fn] = fnIR
			return nil
		}
		if err != nil && f.led.HasFatal(f.ctx.File()) {
			return err
		}
		// fall through to analysing the body
	}

	fnIR, err := AnalyseFunction(def, fn, f.ctx, f.source)
	if err != nil {
		return err
	}
	f.fir.Functions[fn] = fnIR
	return nil
}

func (f *fileAnalyser) analyseModuleLambda(assign, lambda *tree_sitter.Node) error {
	name := parser.FieldText(assign, "left", f.source)
	sym := f.ctx.Get(name)
	fn, ok := sym.(*symbol.Func)
	if !ok {
		return nil
	}
	if f.cfg != nil && f.cfg.IsExcludedName(fn.Name) {
		return nil
	}
	fnIR, err := AnalyseLambda(lambda, fn, f.ctx, f.source)
	if err != nil {
		return err
	}
	f.fir.Functions[fn] = fnIR
	return nil
}
