package bus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func nested(depth int) Value {
	v := Primitive("u32", "7")
	for i := 0; i < depth; i++ {
		v = Array(v)
	}
	return v
}

func TestFormat_Primitives(t *testing.T) {
	v := Struct(Primitive("str", "org.example"), Primitive("u32", "42"))
	out := FormatString(v, DefaultMaxDepth)
	require.Equal(t, "[struct]:\n  0 [str]: \"org.example\"\n  1 [u32]: 42\n", out)
}

func TestFormat_KeyedStructArrayRendersAsMap(t *testing.T) {
	v := Array(
		Struct(Primitive("str", "Name"), Variant(Primitive("str", "dbuddy"))),
		Struct(Primitive("str", "Pid"), Variant(Primitive("u32", "12"))),
	)
	lines := Format(v, DefaultMaxDepth)
	require.Len(t, lines, 3)
	require.Equal(t, "[struct[]]:", lines[0].Text)
	require.Equal(t, `Name [str]: "dbuddy"`, lines[1].Text)
	require.Equal(t, 1, lines[1].Depth)
	require.Equal(t, "Pid [u32]: 12", lines[2].Text)
}

func TestFormat_DictAndEmptyContainers(t *testing.T) {
	v := Struct(
		Dict(Pair{Key: Primitive("str", "a"), Value: Primitive("bool", "true")}),
		Dict(),
		Array(),
	)
	out := FormatString(v, DefaultMaxDepth)
	require.Contains(t, out, "0 [dict]:\n    a [bool]: true\n")
	require.Contains(t, out, "1 [dict]: {}")
	require.Contains(t, out, "2 [array]: []")
}

func TestFormat_DepthCeilingElides(t *testing.T) {
	lines := Format(nested(100), 5)
	require.Len(t, lines, 7)
	last := lines[len(lines)-1]
	require.True(t, strings.HasSuffix(last.Text, "(elided)"), last.Text)
}

func TestFormat_UndecodableMarker(t *testing.T) {
	out := FormatString(Undecodable("signature mismatch"), DefaultMaxDepth)
	require.Equal(t, "[undecodable]: signature mismatch\n", out)
}

func TestWalk_ReportsElision(t *testing.T) {
	visited := 0
	elided := Walk(nested(10), 3, func(Value, int) { visited++ })
	require.True(t, elided)
	require.Equal(t, 4, visited)

	visited = 0
	elided = Walk(nested(2), 3, func(Value, int) { visited++ })
	require.False(t, elided)
	require.Equal(t, 3, visited)
}
