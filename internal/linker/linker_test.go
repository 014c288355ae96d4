package linker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raptor-audit/cairo-parser/internal/cairo"
	"github.com/raptor-audit/cairo-parser/internal/model"
)

func parseFile(path, modulePath, source string) *cairo.FileParse {
	return cairo.NewParser(false).ParseFile(path, modulePath, source)
}

func TestBuildTableRegistersModuleAndEntities(t *testing.T) {
	foo := parseFile("src/a/foo.cairo", "a::foo", "#[starknet::contract]\nmod Foo {\n    fn f() {\n    }\n}\n")
	bar := parseFile("src/b/bar.cairo", "b::bar", "use crate::a::foo::Foo;\n#[starknet::contract]\nmod Bar {}\n")

	table := BuildTable([]*cairo.FileParse{foo, bar})
	for _, key := range []string{"a::foo", "a::foo::Foo", "b::bar", "b::bar::Bar"} {
		_, ok := table.Lookup(key)
		assert.True(t, ok, key)
	}
	assert.Equal(t, 4, table.Len())
}

func TestBuildTableDuplicateKeepsFirst(t *testing.T) {
	first := parseFile("one/src/dup.cairo", "dup", "mod M {}\n")
	second := parseFile("two/src/dup.cairo", "dup", "mod M {}\n")

	table := BuildTable([]*cairo.FileParse{first, second})
	got, ok := table.Lookup("dup")
	require.True(t, ok)
	assert.Equal(t, "one/src/dup.cairo", got.FilePath)
	assert.NotEmpty(t, second.FileModule().ParseWarnings)
}

func TestLinkResolvesLocalImport(t *testing.T) {
	foo := parseFile("src/a/foo.cairo", "a::foo", "#[starknet::contract]\nmod Foo {\n    fn f() {\n    }\n}\n")
	bar := parseFile("src/b/bar.cairo", "b::bar", "use crate::a::foo::Foo;\n#[starknet::contract]\nmod Bar {}\n")
	parses := []*cairo.FileParse{foo, bar}

	lk := New()
	lk.Link(BuildTable(parses), parses, true)

	require.Len(t, bar.Imports, 1)
	assert.True(t, bar.Imports[0].Resolved)
	assert.False(t, bar.Imports[0].StubCreated)

	rep := lk.Report(BuildTable(parses))
	assert.Equal(t, 0, rep.TotalStubs)
	assert.Equal(t, 1, rep.TotalResolved)
}

func TestLinkStubsExternalImport(t *testing.T) {
	fp := parseFile("m.cairo", "m", "use core::array::ArrayTrait;\nmod M {}\n")
	parses := []*cairo.FileParse{fp}

	lk := New()
	table := BuildTable(parses)
	lk.Link(table, parses, true)

	imp := fp.Imports[0]
	assert.False(t, imp.Resolved)
	assert.True(t, imp.StubCreated)

	m := fp.Entities[1]
	stub, ok := m.StubModules["core::array"]
	require.True(t, ok)
	assert.Equal(t, model.KindStub, stub.Kind)
	require.Len(t, stub.Functions, 1)
	assert.Equal(t, "ArrayTrait", stub.Functions[0].Name)
	assert.True(t, stub.Functions[0].IsStub)

	rep := lk.Report(table)
	assert.Equal(t, []string{"core::array"}, rep.StubbedModules)
}

func TestImportDichotomyAfterLinking(t *testing.T) {
	fp := parseFile("m.cairo", "m", "use core::array::ArrayTrait;\nuse crate::m::M;\nmod M {}\n")
	parses := []*cairo.FileParse{fp}

	lk := New()
	lk.Link(BuildTable(parses), parses, true)

	for _, imp := range fp.Imports {
		assert.True(t, imp.Resolved != imp.StubCreated, imp.ModulePath)
	}
}

func TestLinkNoStubRecordsParseError(t *testing.T) {
	fp := parseFile("m.cairo", "m", "use core::array::ArrayTrait;\nmod M {}\n")
	parses := []*cairo.FileParse{fp}

	lk := New()
	lk.Link(BuildTable(parses), parses, false)

	imp := fp.Imports[0]
	assert.False(t, imp.Resolved)
	assert.False(t, imp.StubCreated)

	m := fp.Entities[1]
	require.NotEmpty(t, m.ParseErrors)
	assert.Contains(t, m.ParseErrors[0], "unresolved_import")
	assert.Empty(t, m.StubModules)
}

func TestSuperImportStaysExternal(t *testing.T) {
	fp := parseFile("m.cairo", "m", "use super::helpers::double;\nmod M {}\n")
	parses := []*cairo.FileParse{fp}

	lk := New()
	lk.Link(BuildTable(parses), parses, true)
	assert.False(t, fp.Imports[0].Resolved)
	assert.True(t, fp.Imports[0].StubCreated)
}

func TestPrefixResolutionAttachesTail(t *testing.T) {
	lib := parseFile("src/math.cairo", "math", "fn delta() {\n}\n")
	user := parseFile("src/use_math.cairo", "use_math", "use crate::math::delta_fn;\nmod U {}\n")
	parses := []*cairo.FileParse{lib, user}

	lk := New()
	lk.Link(BuildTable(parses), parses, true)

	imp := user.Imports[0]
	assert.True(t, imp.Resolved)
	assert.Contains(t, imp.Symbols, "delta_fn")
}

func TestDuplicateImportsShareOneStub(t *testing.T) {
	a := parseFile("a.cairo", "a", "use ext::thing::One;\nmod A {}\n")
	b := parseFile("b.cairo", "b", "use ext::thing::Two;\nmod B {}\n")
	parses := []*cairo.FileParse{a, b}

	lk := New()
	lk.Link(BuildTable(parses), parses, true)

	sa := a.Entities[1].StubModules["ext::thing"]
	sb := b.Entities[1].StubModules["ext::thing"]
	require.NotNil(t, sa)
	assert.Same(t, sa, sb)
	assert.Len(t, sa.Functions, 2)
}

func TestRelinkUpgradesStub(t *testing.T) {
	bar := parseFile("src/b/bar.cairo", "b::bar", "use crate::a::foo::Foo;\n#[starknet::contract]\nmod Bar {}\n")
	parses := []*cairo.FileParse{bar}

	lk := New()
	lk.Link(BuildTable(parses), parses, true)
	require.True(t, bar.Imports[0].StubCreated)
	require.Contains(t, bar.Entities[1].StubModules, "crate::a::foo")

	// A second directory supplies the real module; relink upgrades it.
	foo := parseFile("src/a/foo.cairo", "a::foo", "#[starknet::contract]\nmod Foo {\n    fn f() {\n    }\n}\n")
	parses = append(parses, foo)
	lk.Link(BuildTable(parses), parses, true)

	assert.True(t, bar.Imports[0].Resolved)
	assert.False(t, bar.Imports[0].StubCreated)
	assert.NotContains(t, bar.Entities[1].StubModules, "crate::a::foo")
	assert.Empty(t, lk.Stubs())
}
