// Package names renders access expressions into canonical names.
//
// A canonical name is a deterministic string for any expression reachable in
// a get/set/del/call position: "a", "a.b", "a[]", "a.b()", "*a", nested
// arbitrarily. Expressions with no stable identifier (literals, operators,
// comprehensions, ...) render as a synthesized tag such as "@BinaryOp", with
// any attribute/subscript/call suffix appended ("@BinaryOp.attr").
//
// Rendering is total: every node kind yields some canonical name.
package names

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/SuadeLabs/rattr/internal/parser"
)

// SyntheticPrefix marks names synthesized for unnameable expressions.
const SyntheticPrefix = "@"

// AttrBuiltins are the builtins that fold into plain attribute accesses when
// their name argument is a string literal.
var AttrBuiltins = map[string]bool{
	"getattr": true,
	"setattr": true,
	"delattr": true,
	"hasattr": true,
}

// kindTags maps tree-sitter Python node kinds to synthesized tag names.
// Unlisted kinds fall back to CamelCase of the kind itself.
var kindTags = map[string]string{
	"binary_operator":          "BinaryOp",
	"unary_operator":           "UnaryOp",
	"not_operator":             "UnaryOp",
	"boolean_operator":         "BoolOp",
	"comparison_operator":      "Compare",
	"conditional_expression":   "IfExp",
	"named_expression":         "NamedExpr",
	"lambda":                   "Lambda",
	"await":                    "Await",
	"yield":                    "Yield",
	"string":                   "Str",
	"concatenated_string":      "Str",
	"integer":                  "Int",
	"float":                    "Float",
	"true":                     "Bool",
	"false":                    "Bool",
	"none":                     "None",
	"ellipsis":                 "Ellipsis",
	"tuple":                    "Tuple",
	"tuple_pattern":            "Tuple",
	"list":                     "List",
	"list_pattern":             "List",
	"set":                      "Set",
	"dictionary":               "Dict",
	"list_comprehension":       "ListComp",
	"set_comprehension":        "SetComp",
	"dictionary_comprehension": "DictComp",
	"generator_expression":     "GeneratorExp",
	"slice":                    "Slice",
}

// TagFor returns the synthesized tag for an unnameable node kind, without the
// "@" prefix.
func TagFor(kind string) string {
	if tag, ok := kindTags[kind]; ok {
		return tag
	}
	// snake_case -> CamelCase
	parts := strings.Split(kind, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// IsSynthetic reports whether a canonical name is rooted at a synthesized tag.
func IsSynthetic(name string) bool {
	return strings.HasPrefix(strings.TrimLeft(name, "*"), SyntheticPrefix)
}

// Pair returns the basename and the full canonical name of an access
// expression. The basename is the root identifier ("a" for "a.b[].c()"), or
// the synthesized tag when the root is unnameable.
func Pair(node *tree_sitter.Node, source []byte) (basename string, fullname string) {
	if node == nil {
		tag := SyntheticPrefix + "Unknown"
		return tag, tag
	}

	switch node.Kind() {
	case "identifier", "keyword_identifier":
		t := parser.NodeText(node, source)
		return t, t

	case "attribute":
		base, sub := Pair(node.ChildByFieldName("object"), source)
		return base, sub + "." + parser.FieldText(node, "attribute", source)

	case "subscript":
		base, sub := Pair(node.ChildByFieldName("value"), source)
		return base, sub + "[]"

	case "call":
		fn := node.ChildByFieldName("function")
		if fn != nil && fn.Kind() == "identifier" && AttrBuiltins[parser.NodeText(fn, source)] {
			base, full, ok := xattrPair(node, source)
			if ok {
				return base, full
			}
		}
		base, sub := Pair(fn, source)
		return base, sub + "()"

	case "list_splat", "list_splat_pattern":
		base, sub := pairOfOnlyChild(node, source)
		return base, "*" + sub

	case "dictionary_splat", "dictionary_splat_pattern":
		base, sub := pairOfOnlyChild(node, source)
		return base, "**" + sub

	case "parenthesized_expression", "interpolation":
		return pairOfOnlyChild(node, source)

	default:
		tag := SyntheticPrefix + TagFor(node.Kind())
		return tag, tag
	}
}

// Fullname returns only the full canonical name of an access expression.
func Fullname(node *tree_sitter.Node, source []byte) string {
	_, full := Pair(node, source)
	return full
}

// Basename returns only the root identifier of an access expression.
func Basename(node *tree_sitter.Node, source []byte) string {
	base, _ := Pair(node, source)
	return base
}

func pairOfOnlyChild(node *tree_sitter.Node, source []byte) (string, string) {
	if node.NamedChildCount() == 1 {
		return Pair(node.NamedChild(0), source)
	}
	tag := SyntheticPrefix + TagFor(node.Kind())
	return tag, tag
}

// xattrPair folds getattr/setattr/delattr/hasattr calls with literal name
// arguments into plain attribute accesses: getattr(a.b, "c") -> "a.b.c".
// Nested calls to the same builtin fold recursively. A non-literal name
// argument renders as "<name>" so the access is still recorded, degraded.
func xattrPair(node *tree_sitter.Node, source []byte) (string, string, bool) {
	args := parser.NamedChildren(node.ChildByFieldName("arguments"))
	positional := make([]*tree_sitter.Node, 0, len(args))
	for _, a := range args {
		switch a.Kind() {
		case "keyword_argument", "comment":
			continue
		}
		positional = append(positional, a)
	}
	if len(positional) < 2 {
		return "", "", false
	}

	obj, attr := positional[0], positional[1]

	var attrName string
	if lit, ok := StringLiteral(attr, source); ok {
		attrName = lit
	} else {
		attrName = "<" + Fullname(attr, source) + ">"
	}

	base, objName := Pair(obj, source)
	return base, objName + "." + attrName, true
}

// StringLiteral returns the content of a plain string literal node.
func StringLiteral(node *tree_sitter.Node, source []byte) (string, bool) {
	if node == nil || node.Kind() != "string" {
		return "", false
	}
	var content strings.Builder
	for _, child := range parser.NamedChildren(node) {
		switch child.Kind() {
		case "string_content", "escape_sequence":
			content.WriteString(parser.NodeText(child, source))
		case "interpolation":
			// f-string: not a literal
			return "", false
		}
	}
	return content.String(), true
}

// RemoveCallBrackets strips call brackets from a canonical name:
// "a.b().c()" -> "a.b.c".
func RemoveCallBrackets(name string) string {
	return strings.ReplaceAll(name, "()", "")
}

// StripAccessors reduces a canonical name to plain dotted identifiers,
// removing call brackets, subscripts and splat markers.
func StripAccessors(name string) string {
	name = RemoveCallBrackets(name)
	name = strings.ReplaceAll(name, "[]", "")
	return strings.TrimLeft(name, "*")
}
