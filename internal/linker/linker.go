// Package linker implements the three-pass symbol resolution that turns a
// batch of parsed files into a linked contract set. Pass 1 builds the global
// symbol table (the GOT), Pass 2 resolves imports against it, and Pass 3
// synthesizes stub modules for external dependencies (the PLT).
package linker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/raptor-audit/cairo-parser/internal/cairo"
	"github.com/raptor-audit/cairo-parser/internal/model"
)

// Table is the frozen symbol table. It is built once per link and never
// mutated afterwards; shared mutable access during resolution is a defect.
type Table struct {
	entries map[string]*model.ContractInfo
}

// Lookup returns the entity registered under a fully-qualified module path.
func (t *Table) Lookup(path string) (*model.ContractInfo, bool) {
	c, ok := t.entries[path]
	return c, ok
}

func (t *Table) Len() int { return len(t.entries) }

// Paths returns all registered paths in sorted order.
func (t *Table) Paths() []string {
	out := make([]string, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BuildTable runs Pass 1: every file-level module registers under its module
// path and every nested entity under <module_path>::<name>. Duplicate keys
// keep the first registration and record a warning on the second entity.
func BuildTable(parses []*cairo.FileParse) *Table {
	t := &Table{entries: make(map[string]*model.ContractInfo)}
	register := func(key string, c *model.ContractInfo) {
		if key == "" {
			return
		}
		if _, dup := t.entries[key]; dup {
			c.AddWarning(fmt.Sprintf("duplicate symbol %s; keeping first definition", key))
			return
		}
		t.entries[key] = c
	}
	for _, fp := range parses {
		register(fp.ModulePath, fp.FileModule())
		for _, e := range fp.Entities[1:] {
			if fp.ModulePath != "" {
				register(fp.ModulePath+"::"+e.Name, e)
			} else {
				register(e.Name, e)
			}
		}
	}
	return t
}

// Linker carries resolution state across link invocations so that a later
// run over additional roots can upgrade previously stubbed modules.
type Linker struct {
	stubs    map[string]*model.ContractInfo
	resolved map[string]bool
}

func New() *Linker {
	return &Linker{
		stubs:    make(map[string]*model.ContractInfo),
		resolved: make(map[string]bool),
	}
}

// Link runs Pass 2 over every import of every parsed file, then Pass 3 when
// stubMissing is true. With stubbing disabled, unresolved imports become
// parse errors of kind unresolved_import on the owning entities.
func (l *Linker) Link(table *Table, parses []*cairo.FileParse, stubMissing bool) {
	for _, fp := range parses {
		for _, imp := range fp.Imports {
			if imp.Resolved {
				continue
			}
			imp.StubCreated = false
			l.resolve(table, imp)
		}
	}

	for _, fp := range parses {
		for _, imp := range fp.Imports {
			if imp.Resolved {
				l.resolved[imp.ModulePath] = true
				for _, e := range fp.Entities {
					delete(e.StubModules, imp.ModulePath)
				}
				continue
			}
			if !stubMissing {
				for _, e := range fp.Entities {
					e.AddError(fmt.Sprintf("unresolved_import: %s (line %d)", imp.ModulePath, imp.Line))
				}
				continue
			}
			stub := l.stubFor(imp)
			imp.StubCreated = true
			for _, e := range fp.Entities {
				e.StubModules[imp.ModulePath] = stub
			}
		}
	}

	// A module stubbed by an earlier link may have resolved now that more
	// files are in the table; drop stubs no import needs anymore.
	referenced := make(map[string]bool)
	for _, fp := range parses {
		for _, imp := range fp.Imports {
			if imp.StubCreated {
				referenced[imp.ModulePath] = true
			}
		}
	}
	for path := range l.stubs {
		if !referenced[path] {
			delete(l.stubs, path)
		}
	}
}

// resolve implements the Pass 2 lookup: leave super:: paths unresolved,
// strip crate::, try the literal path, then progressively strip trailing
// segments; a stripped tail is attached to the import as symbols.
func (l *Linker) resolve(table *Table, imp *model.ImportInfo) {
	path := imp.ModulePath
	if strings.HasPrefix(path, "super::") || path == "super" {
		// super paths cannot be resolved without the importing crate's
		// layout; they are treated as external.
		return
	}
	path = strings.TrimPrefix(path, "crate::")

	if _, ok := table.Lookup(path); ok {
		imp.Resolved = true
		return
	}

	segs := strings.Split(path, "::")
	for cut := len(segs) - 1; cut > 0; cut-- {
		prefix := strings.Join(segs[:cut], "::")
		if _, ok := table.Lookup(prefix); ok {
			imp.Resolved = true
			for _, tail := range segs[cut:] {
				if !contains(imp.Symbols, tail) {
					imp.Symbols = append(imp.Symbols, tail)
				}
			}
			return
		}
	}
}

// stubFor returns the stub for a module path, creating it on first use.
// Duplicate imports of the same external module share one stub object.
func (l *Linker) stubFor(imp *model.ImportInfo) *model.ContractInfo {
	if stub, ok := l.stubs[imp.ModulePath]; ok {
		// A later import may carry symbols the first did not.
		l.addStubFunctions(stub, imp.Symbols)
		return stub
	}
	segs := strings.Split(imp.ModulePath, "::")
	stub := &model.ContractInfo{
		Name:        segs[len(segs)-1],
		FilePath:    fmt.Sprintf("<stub:%s>", imp.ModulePath),
		Kind:        model.KindStub,
		StubModules: make(map[string]*model.ContractInfo),
	}
	l.addStubFunctions(stub, imp.Symbols)
	stub.AddWarning(fmt.Sprintf("stub created for missing module: %s", imp.ModulePath))
	l.stubs[imp.ModulePath] = stub
	return stub
}

func (l *Linker) addStubFunctions(stub *model.ContractInfo, symbols []string) {
	for _, sym := range symbols {
		exists := false
		for _, fn := range stub.Functions {
			if fn.Name == sym {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		stub.Functions = append(stub.Functions, &model.FunctionInfo{
			Name:       sym,
			Visibility: model.VisExternal,
			Decorators: []string{"stub"},
			IsStub:     true,
		})
	}
}

// Stubs returns the stub registry keyed by module path.
func (l *Linker) Stubs() map[string]*model.ContractInfo { return l.stubs }

// Report summarizes the link: totals plus sorted stubbed/resolved module
// lists and per-stub detail.
func (l *Linker) Report(table *Table) *model.StubReport {
	rep := &model.StubReport{
		TotalStubs:      len(l.stubs),
		TotalResolved:   len(l.resolved),
		TotalSymbols:    table.Len(),
		StubbedModules:  []string{},
		ResolvedModules: []string{},
		Stubs:           make(map[string]model.StubDetail, len(l.stubs)),
	}
	for path, stub := range l.stubs {
		rep.StubbedModules = append(rep.StubbedModules, path)
		rep.Stubs[path] = model.StubDetail{
			FilePath:  stub.FilePath,
			Functions: len(stub.Functions),
			Warnings:  stub.ParseWarnings,
		}
	}
	for path := range l.resolved {
		rep.ResolvedModules = append(rep.ResolvedModules, path)
	}
	sort.Strings(rep.StubbedModules)
	sort.Strings(rep.ResolvedModules)
	return rep
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
