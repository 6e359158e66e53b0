package bus

import (
	"fmt"
	"strings"
)

// DefaultMaxDepth bounds every recursive walk over a Value.
const DefaultMaxDepth = 32

type ValueKind int

const (
	ValuePrimitive ValueKind = iota
	ValueArray
	ValueDict
	ValueStruct
	ValueVariant
	ValueUndecodable
)

func (k ValueKind) String() string {
	switch k {
	case ValuePrimitive:
		return "primitive"
	case ValueArray:
		return "array"
	case ValueDict:
		return "dict"
	case ValueStruct:
		return "struct"
	case ValueVariant:
		return "variant"
	case ValueUndecodable:
		return "undecodable"
	default:
		return "unknown"
	}
}

// Value is a decoded message payload. Only the fields matching Kind are set.
type Value struct {
	Kind ValueKind
	// Type is the wire type name of a primitive ("str", "u32", "object-path"...).
	Type  string
	Text  string
	Items []Value
	Pairs []Pair
	Inner *Value
}

type Pair struct {
	Key   Value
	Value Value
}

func Primitive(typ, text string) Value {
	return Value{Kind: ValuePrimitive, Type: typ, Text: text}
}

func Array(items ...Value) Value {
	return Value{Kind: ValueArray, Items: items}
}

func Dict(pairs ...Pair) Value {
	return Value{Kind: ValueDict, Pairs: pairs}
}

func Struct(fields ...Value) Value {
	return Value{Kind: ValueStruct, Items: fields}
}

func Variant(inner Value) Value {
	return Value{Kind: ValueVariant, Inner: &inner}
}

// Undecodable marks a body the decoder could not turn into a tree.
func Undecodable(reason string) Value {
	return Value{Kind: ValueUndecodable, Text: reason}
}

func (v Value) IsZero() bool {
	return v.Kind == ValuePrimitive && v.Type == "" && v.Text == ""
}

// Walk visits v depth-first. Subtrees deeper than maxDepth are not visited;
// the return value reports whether anything was elided.
func Walk(v Value, maxDepth int, fn func(v Value, depth int)) (elided bool) {
	var walk func(v Value, depth int)
	walk = func(v Value, depth int) {
		if depth > maxDepth {
			elided = true
			return
		}
		fn(v, depth)
		switch v.Kind {
		case ValueArray, ValueStruct:
			for _, it := range v.Items {
				walk(it, depth+1)
			}
		case ValueDict:
			for _, p := range v.Pairs {
				walk(p.Key, depth+1)
				walk(p.Value, depth+1)
			}
		case ValueVariant:
			if v.Inner != nil {
				walk(*v.Inner, depth+1)
			}
		}
	}
	walk(v, 0)
	return elided
}

// Line is one rendered line of a formatted value.
type Line struct {
	Depth int
	Kind  ValueKind
	Text  string
}

const elidedText = "… (elided)"

// Format renders v as indented YAML-like lines. Nesting beyond maxDepth is
// replaced by a single elided marker line.
func Format(v Value, maxDepth int) []Line {
	f := formatter{max: maxDepth}
	f.value(v, 0, 0, "")
	return f.lines
}

// FormatString joins Format output with two-space indentation.
func FormatString(v Value, maxDepth int) string {
	var b strings.Builder
	for _, l := range Format(v, maxDepth) {
		b.WriteString(strings.Repeat("  ", l.Depth))
		b.WriteString(l.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

type formatter struct {
	max   int
	lines []Line
}

func (f *formatter) emit(depth int, kind ValueKind, text string) {
	f.lines = append(f.lines, Line{Depth: depth, Kind: kind, Text: text})
}

func label(prefix, typ string) string {
	if prefix == "" {
		return "[" + typ + "]"
	}
	return prefix + " [" + typ + "]"
}

// value renders v at indentation depth; level counts recursion and is what
// the ceiling applies to, since variants recurse without indenting.
func (f *formatter) value(v Value, depth, level int, prefix string) {
	if level > f.max {
		f.emit(depth, v.Kind, strings.TrimSpace(prefix+" "+elidedText))
		return
	}

	switch v.Kind {
	case ValueVariant:
		// variants are transparent, the inner value keeps the prefix
		if v.Inner == nil {
			f.emit(depth, v.Kind, label(prefix, "variant")+": <nil>")
			return
		}
		f.value(*v.Inner, depth, level+1, prefix)
	case ValuePrimitive:
		text := v.Text
		switch v.Type {
		case "str":
			text = fmt.Sprintf("%q", v.Text)
		case "signature":
			text = "'" + v.Text + "'"
		}
		f.emit(depth, v.Kind, label(prefix, v.Type)+": "+text)
	case ValueUndecodable:
		f.emit(depth, v.Kind, label(prefix, "undecodable")+": "+v.Text)
	case ValueArray:
		if len(v.Items) == 0 {
			f.emit(depth, v.Kind, label(prefix, "array")+": []")
			return
		}
		if isKeyedStructArray(v.Items) {
			f.emit(depth, v.Kind, label(prefix, "struct[]")+":")
			for _, it := range v.Items {
				f.value(it.Items[1], depth+1, level+1, it.Items[0].Text)
			}
			return
		}
		f.emit(depth, v.Kind, label(prefix, "array")+":")
		for i, it := range v.Items {
			f.value(it, depth+1, level+1, fmt.Sprintf("- %d", i))
		}
	case ValueStruct:
		f.emit(depth, v.Kind, label(prefix, "struct")+":")
		for i, it := range v.Items {
			f.value(it, depth+1, level+1, fmt.Sprintf("%d", i))
		}
	case ValueDict:
		if len(v.Pairs) == 0 {
			f.emit(depth, v.Kind, label(prefix, "dict")+": {}")
			return
		}
		f.emit(depth, v.Kind, label(prefix, "dict")+":")
		for _, p := range v.Pairs {
			f.value(p.Value, depth+1, level+1, keyText(p.Key))
		}
	}
}

func keyText(k Value) string {
	for i := 0; k.Kind == ValueVariant && k.Inner != nil && i < DefaultMaxDepth; i++ {
		k = *k.Inner
	}
	if k.Kind == ValuePrimitive {
		return k.Text
	}
	return "<" + k.Kind.String() + ">"
}

// isKeyedStructArray matches a(sv)-like arrays that read better as maps.
func isKeyedStructArray(items []Value) bool {
	for _, it := range items {
		if it.Kind != ValueStruct || len(it.Items) != 2 {
			return false
		}
		if it.Items[0].Kind != ValuePrimitive || it.Items[0].Type != "str" {
			return false
		}
	}
	return true
}
