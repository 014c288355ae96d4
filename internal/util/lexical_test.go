package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentifiers(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Identifiers("a + b * 2"))
	assert.Equal(t, []string{"x"}, Identifiers("compute(x)"), "callees are excluded")
	assert.Empty(t, Identifiers("let mut if else"))
	assert.Equal(t, []string{"total"}, Identifiers("total + total"), "names are deduplicated")
}

func TestSplitTopLevel(t *testing.T) {
	assert.Equal(t,
		[]string{"a: Map<K, V>", " b: u8"},
		SplitTopLevel("a: Map<K, V>, b: u8", ','))
	assert.Equal(t, []string{"x"}, SplitTopLevel("x", ','))
	assert.Equal(t,
		[]string{"f(a, b)", " c"},
		SplitTopLevel("f(a, b), c", ','))
}

func TestStripLineComment(t *testing.T) {
	assert.Equal(t, "let x = 1; ", StripLineComment("let x = 1; // note"))
	assert.Equal(t, `let s = "a // b";`, StripLineComment(`let s = "a // b";`))
}

func TestMatchedBody(t *testing.T) {
	lines := []string{
		"fn f() {",
		`    let s = "}";`,
		"    // }",
		"    if x { y(); }",
		"}",
	}
	line, col := MatchedBody(lines, 0)
	assert.Equal(t, 4, line)
	assert.Equal(t, 0, col)

	line, _ = MatchedBody([]string{"fn f() {", "let x = 1;"}, 0)
	assert.Equal(t, -1, line)
}
