// Package cairo is a line-and-regex lexical parser for Cairo source files.
// It recovers declared structure (contracts, interfaces, components, modules,
// functions, storage, events, imports) without invoking the Cairo compiler.
// Malformed constructs (an unclosed block, an annotation with no following
// declaration, a malformed or unclosed function) are recorded as warnings or
// errors; other unrecognized lines are skipped without any record. The
// parser never aborts a file.
package cairo

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/raptor-audit/cairo-parser/internal/cache"
	"github.com/raptor-audit/cairo-parser/internal/model"
	"github.com/raptor-audit/cairo-parser/internal/util"
)

// FileParse is the structured output for a single file.
type FileParse struct {
	Path       string                `msgpack:"path"`
	ModulePath string                `msgpack:"module_path"`
	Version    int                   `msgpack:"version"` // 0 or 1
	Entities   []*model.ContractInfo `msgpack:"entities"`
	Imports    []*model.ImportInfo   `msgpack:"imports"`
	Warnings   []string              `msgpack:"warnings"`
	Errors     []string              `msgpack:"errors"`
}

// FileModule returns the synthesized file-level module entity, which is
// always the first entity.
func (fp *FileParse) FileModule() *model.ContractInfo { return fp.Entities[0] }

var (
	reMod      = regexp.MustCompile(`^(?:pub\s+)?mod\s+(\w+)`)
	reTrait    = regexp.MustCompile(`^(?:pub\s+)?trait\s+(\w+)`)
	reFn       = regexp.MustCompile(`\b(?:fn|func)\s+(\w+)`)
	reUseBrace = regexp.MustCompile(`^use\s+([\w:]+)::\{([^}]+)\}\s*;`)
	reUsePlain = regexp.MustCompile(`^use\s+([\w:]+)\s*;`)
	reFromImp  = regexp.MustCompile(`^from\s+([\w.]+)\s+import\s+(.+)$`)
	reField    = regexp.MustCompile(`^(\w+)\s*:\s*(.+?),?$`)
	reEvent    = regexp.MustCompile(`^(?:pub\s+)?(?:enum|struct)\s+(\w+)`)
)

// Parser turns file bytes into a FileParse. When caching is enabled, results
// are keyed by file content so unchanged files are not re-parsed across runs.
type Parser struct {
	useCache bool
}

func NewParser(useCache bool) *Parser { return &Parser{useCache: useCache} }

// ParseFile parses content (the bytes of path decoded as UTF-8) into a
// FileParse, consulting the content-keyed cache first.
func (p *Parser) ParseFile(path, modulePath, content string) *FileParse {
	abs, _ := filepath.Abs(path)
	key := cache.Key("cairo-parse-v1", abs, modulePath, content)
	if p.useCache {
		if b, ok := cache.Load(key); ok {
			var fp FileParse
			if err := msgpack.Unmarshal(b, &fp); err == nil && len(fp.Entities) > 0 {
				// Decoding breaks the sharing between the file's import list
				// and the per-entity views; restore it so the linker marks
				// resolution in one place.
				for _, e := range fp.Entities {
					e.Imports = fp.Imports
					if e.StubModules == nil {
						e.StubModules = make(map[string]*model.ContractInfo)
					}
				}
				return &fp
			}
		}
	}
	fp := p.parse(path, modulePath, content)
	if p.useCache {
		if b, err := msgpack.Marshal(fp); err == nil {
			_ = cache.Store(key, b)
		}
	}
	return fp
}

// DetectVersion classifies source as Cairo 0 or Cairo 1 from indicator
// tokens, defaulting to Cairo 1.
func DetectVersion(source string) int {
	for _, pat := range []string{"#[starknet::contract]", "#[starknet::interface]", "#[storage]", "felt252", "fn "} {
		if strings.Contains(source, pat) {
			return 1
		}
	}
	for _, pat := range []string{"@storage_var", "@external", "@view", "func "} {
		if strings.Contains(source, pat) {
			return 0
		}
	}
	return 1
}

func (p *Parser) parse(path, modulePath, content string) *FileParse {
	lines := strings.Split(content, "\n")
	version := DetectVersion(content)

	stem := strings.TrimSuffix(filepath.Base(path), ".cairo")
	moduleName := stem
	if modulePath != "" {
		segs := strings.Split(modulePath, "::")
		moduleName = segs[len(segs)-1]
	}
	fileModule := &model.ContractInfo{
		Name:        moduleName,
		FilePath:    path,
		Kind:        model.KindModule,
		StubModules: make(map[string]*model.ContractInfo),
	}

	fp := &FileParse{
		Path:       path,
		ModulePath: modulePath,
		Version:    version,
		Entities:   []*model.ContractInfo{fileModule},
	}
	fp.Imports = p.extractImports(lines, version)

	type openEntity struct {
		info *model.ContractInfo
		end  int // 0-based line of closing brace
	}
	var stack []openEntity
	current := func() *model.ContractInfo {
		if len(stack) > 0 {
			return stack[len(stack)-1].info
		}
		return fileModule
	}

	pendingKind := model.EntityKind("")
	pendingSince := -1
	var decorators []string

	addEntity := func(name string, kind model.EntityKind, i int) {
		info := &model.ContractInfo{
			Name:        name,
			FilePath:    path,
			Kind:        kind,
			StubModules: make(map[string]*model.ContractInfo),
		}
		fp.Entities = append(fp.Entities, info)
		end, _ := util.MatchedBody(lines, i)
		if end < 0 {
			end = i
			fp.Warnings = append(fp.Warnings, fmt.Sprintf("unclosed block for %s %s at line %d", kind, name, i+1))
		}
		stack = append(stack, openEntity{info: info, end: end})
	}

	for i := 0; i < len(lines); i++ {
		// Close finished entities before looking at this line.
		for len(stack) > 0 && i > stack[len(stack)-1].end {
			stack = stack[:len(stack)-1]
		}

		raw := lines[i]
		stripped := strings.TrimSpace(util.StripLineComment(raw))
		if stripped == "" {
			continue
		}

		// Annotation windows: a starknet annotation binds to the mod/trait
		// declaration that follows within the next few lines.
		switch {
		case strings.Contains(stripped, "#[starknet::contract]"):
			pendingKind, pendingSince = model.KindContract, i
			continue
		case strings.Contains(stripped, "#[starknet::interface]"):
			pendingKind, pendingSince = model.KindInterface, i
			continue
		case strings.Contains(stripped, "#[starknet::component]"):
			pendingKind, pendingSince = model.KindComponent, i
			continue
		}
		if pendingKind != "" && i-pendingSince > 3 {
			fp.Warnings = append(fp.Warnings, fmt.Sprintf("annotation at line %d has no matching declaration", pendingSince+1))
			pendingKind, pendingSince = "", -1
		}

		switch {
		case strings.Contains(stripped, "#[storage]"):
			p.parseStorageBlock(lines, i, current())
			continue

		case strings.Contains(stripped, "#[event]"):
			p.parseEvent(lines, i, current())
			continue

		case stripped == "@storage_var":
			i = p.parseCairo0StorageVar(lines, i, current())
			continue

		case strings.HasPrefix(stripped, "#[") || strings.HasPrefix(stripped, "@"):
			decorators = append(decorators, stripped)
			continue
		}

		if m := reMod.FindStringSubmatch(stripped); m != nil {
			kind := pendingKind
			if kind == "" || kind == model.KindInterface {
				// A bare mod at column 0 is a plain module; an interface
				// annotation binds to a trait, not a mod.
				if strings.HasPrefix(raw, "mod ") || strings.HasPrefix(raw, "pub mod ") {
					kind = model.KindModule
				} else {
					kind = ""
				}
			}
			if kind != "" {
				addEntity(m[1], kind, i)
				pendingKind, pendingSince = "", -1
				decorators = nil
				continue
			}
		}

		if m := reTrait.FindStringSubmatch(stripped); m != nil {
			kind := model.KindTrait
			if pendingKind == model.KindInterface {
				kind = model.KindInterface
			}
			if pendingKind == model.KindInterface || strings.HasPrefix(raw, "trait ") || strings.HasPrefix(raw, "pub trait ") {
				addEntity(m[1], kind, i)
				pendingKind, pendingSince = "", -1
				decorators = nil
				continue
			}
		}

		if reFn.MatchString(stripped) && !strings.HasPrefix(stripped, "use ") {
			fn, consumed := p.parseFunction(lines, i, decorators, fp)
			if fn != nil {
				owner := current()
				owner.Functions = append(owner.Functions, fn)
				i += consumed
			}
			decorators = nil
			continue
		}

		// Anything else at this level is not a recognized declaration.
		decorators = nil
	}

	// Imports attach to every entity of the file; the slice is shared so the
	// linker marks resolution once.
	for _, e := range fp.Entities {
		e.Imports = fp.Imports
	}
	fileModule.ParseWarnings = append(fileModule.ParseWarnings, fp.Warnings...)
	fileModule.ParseErrors = append(fileModule.ParseErrors, fp.Errors...)
	return fp
}

// parseFunction parses a signature starting at line i. Signatures may span
// lines; scanning stops at the opening brace or a terminating semicolon.
// Returns the FunctionInfo and how many extra lines the signature consumed.
func (p *Parser) parseFunction(lines []string, i int, decorators []string, fp *FileParse) (*model.FunctionInfo, int) {
	sig := ""
	braceLine := -1
	bodiless := false
	consumed := 0
	for j := i; j < len(lines) && j < i+12; j++ {
		part := util.StripLineComment(lines[j])
		sig += part
		if strings.Contains(part, "{") {
			braceLine = j
			consumed = j - i
			break
		}
		if strings.Contains(part, ";") {
			bodiless = true
			consumed = j - i
			break
		}
		// Cairo 0 signatures terminate with a colon instead of a brace.
		if fp.Version == 0 && strings.HasSuffix(strings.TrimSpace(part), ":") {
			bodiless = true
			consumed = j - i
			break
		}
		sig += " "
	}
	if braceLine < 0 && !bodiless {
		fp.Errors = append(fp.Errors, fmt.Sprintf("malformed function declaration at line %d", i+1))
		return nil, 0
	}

	m := reFn.FindStringSubmatch(sig)
	if m == nil {
		return nil, 0
	}
	fn := &model.FunctionInfo{
		Name:       m[1],
		Visibility: model.VisInternal,
		Decorators: append([]string(nil), decorators...),
		Line:       i + 1,
	}
	fn.Parameters = parseParams(extractParens(sig))
	fn.Returns = parseReturns(sig)

	for _, d := range decorators {
		switch {
		case strings.HasPrefix(d, "#[external") || d == "@external":
			fn.Visibility = model.VisExternal
		case strings.HasPrefix(d, "#[view") || d == "@view":
			fn.Visibility = model.VisView
		}
	}
	if fn.Visibility == model.VisInternal && regexp.MustCompile(`\bpub\s+fn\b`).MatchString(sig) {
		fn.Visibility = model.VisExternal
	}

	if braceLine >= 0 {
		endLine, endCol := util.MatchedBody(lines, braceLine)
		if endLine < 0 {
			fp.Errors = append(fp.Errors, fmt.Sprintf("unclosed body for function %s at line %d", fn.Name, i+1))
			return fn, consumed
		}
		openCol := strings.Index(lines[braceLine], "{")
		var b strings.Builder
		for j := braceLine; j <= endLine; j++ {
			line := lines[j]
			if j == endLine {
				line = line[:endCol]
			}
			if j == braceLine {
				line = line[openCol+1:]
			}
			if j > braceLine {
				b.WriteString("\n")
			}
			b.WriteString(line)
		}
		fn.HasBody = true
		fn.BodyText = b.String()
		fn.BodyStart = braceLine + 1
		fn.BodyEnd = endLine + 1
	}
	return fn, consumed
}

// extractParens returns the contents of the first balanced parenthesis group.
func extractParens(s string) string {
	start := strings.Index(s, "(")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[start+1 : i]
			}
		}
	}
	return s[start+1:]
}

// parseParams splits a parameter list on top-level commas, then each piece on
// its first colon. A piece that fails to split is kept whole as a type.
func parseParams(params string) []model.Param {
	var out []model.Param
	if strings.TrimSpace(params) == "" {
		return out
	}
	for _, piece := range util.SplitTopLevel(params, ',') {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		piece = strings.TrimPrefix(piece, "ref ")
		piece = strings.TrimPrefix(piece, "mut ")
		if idx := strings.Index(piece, ":"); idx >= 0 {
			out = append(out, model.Param{
				Name: strings.TrimSpace(piece[:idx]),
				Type: strings.TrimSpace(piece[idx+1:]),
			})
		} else {
			out = append(out, model.Param{Type: piece})
		}
	}
	return out
}

func parseReturns(sig string) []model.Param {
	idx := strings.Index(sig, "->")
	if idx < 0 {
		return nil
	}
	ret := sig[idx+2:]
	if end := strings.IndexAny(ret, "{;"); end >= 0 {
		ret = ret[:end]
	}
	ret = strings.TrimSpace(ret)
	if strings.HasPrefix(ret, "(") && strings.HasSuffix(ret, ")") {
		ret = ret[1 : len(ret)-1]
	}
	var out []model.Param
	for _, piece := range util.SplitTopLevel(ret, ',') {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		if idx := strings.Index(piece, ":"); idx >= 0 {
			out = append(out, model.Param{
				Name: strings.TrimSpace(piece[:idx]),
				Type: strings.TrimSpace(piece[idx+1:]),
			})
		} else {
			out = append(out, model.Param{Type: piece})
		}
	}
	return out
}

// parseStorageBlock finds `struct Storage` after a #[storage] annotation and
// records each field as a storage variable.
func (p *Parser) parseStorageBlock(lines []string, i int, owner *model.ContractInfo) {
	for j := i; j < len(lines) && j < i+5; j++ {
		if !strings.Contains(lines[j], "struct Storage") {
			continue
		}
		end, _ := util.MatchedBody(lines, j)
		if end < 0 {
			end = len(lines) - 1
		}
		for k := j + 1; k <= end && k < len(lines); k++ {
			field := strings.TrimSpace(util.StripLineComment(lines[k]))
			if field == "" || field == "}" || strings.HasPrefix(field, "#[") {
				continue
			}
			if m := reField.FindStringSubmatch(field); m != nil {
				owner.StorageVars = append(owner.StorageVars, model.StorageVarInfo{
					Name: m[1],
					Type: strings.TrimSuffix(strings.TrimSpace(m[2]), ","),
					Line: k + 1,
				})
			}
		}
		return
	}
}

// parseEvent records the enum or struct following a #[event] annotation.
func (p *Parser) parseEvent(lines []string, i int, owner *model.ContractInfo) {
	for j := i; j < len(lines) && j < i+10; j++ {
		stripped := strings.TrimSpace(util.StripLineComment(lines[j]))
		m := reEvent.FindStringSubmatch(stripped)
		if m == nil {
			continue
		}
		ev := model.EventInfo{Name: m[1], Line: j + 1}
		if end, _ := util.MatchedBody(lines, j); end >= 0 {
			for k := j + 1; k < end && k < len(lines); k++ {
				field := strings.TrimSpace(util.StripLineComment(lines[k]))
				if field == "" || strings.HasPrefix(field, "#[") {
					continue
				}
				if fm := reField.FindStringSubmatch(field); fm != nil {
					ev.Fields = append(ev.Fields, model.Param{
						Name: fm[1],
						Type: strings.TrimSuffix(strings.TrimSpace(fm[2]), ","),
					})
				}
			}
		}
		owner.Events = append(owner.Events, ev)
		return
	}
}

// parseCairo0StorageVar handles the Cairo 0 form:
//
//	@storage_var
//	func balance() -> (res: felt):
//
// It returns the index of the consumed declaration line so the main loop
// does not also record the accessor as a function.
func (p *Parser) parseCairo0StorageVar(lines []string, i int, owner *model.ContractInfo) int {
	for j := i + 1; j < len(lines) && j < i+4; j++ {
		stripped := strings.TrimSpace(lines[j])
		m := reFn.FindStringSubmatch(stripped)
		if m == nil {
			continue
		}
		typ := "felt"
		if rets := parseReturns(stripped); len(rets) > 0 {
			typ = rets[0].Type
		}
		owner.StorageVars = append(owner.StorageVars, model.StorageVarInfo{
			Name: m[1],
			Type: strings.TrimSuffix(typ, ":"),
			Line: j + 1,
		})
		return j
	}
	return i
}

// extractImports scans for use statements (Cairo 1) or from-import lines
// (Cairo 0, dotted paths normalized to ::).
func (p *Parser) extractImports(lines []string, version int) []*model.ImportInfo {
	var imports []*model.ImportInfo
	for i, raw := range lines {
		stripped := strings.TrimSpace(util.StripLineComment(raw))
		if version == 0 {
			if m := reFromImp.FindStringSubmatch(stripped); m != nil {
				var symbols []string
				if s := strings.TrimSpace(m[2]); s != "*" {
					for _, part := range strings.Split(s, ",") {
						if part = strings.TrimSpace(part); part != "" {
							symbols = append(symbols, part)
						}
					}
				}
				imports = append(imports, &model.ImportInfo{
					ModulePath: strings.ReplaceAll(m[1], ".", "::"),
					Symbols:    symbols,
					Line:       i + 1,
				})
			}
			continue
		}
		if !strings.HasPrefix(stripped, "use ") {
			continue
		}
		if m := reUseBrace.FindStringSubmatch(stripped); m != nil {
			var symbols []string
			for _, part := range strings.Split(m[2], ",") {
				if part = strings.TrimSpace(part); part != "" {
					symbols = append(symbols, part)
				}
			}
			imports = append(imports, &model.ImportInfo{ModulePath: m[1], Symbols: symbols, Line: i + 1})
			continue
		}
		if m := reUsePlain.FindStringSubmatch(stripped); m != nil {
			modulePath := m[1]
			var symbols []string
			parts := strings.Split(modulePath, "::")
			// A trailing capitalized segment names the imported item, not a
			// module.
			if len(parts) > 1 && parts[len(parts)-1] != "" && parts[len(parts)-1][0] >= 'A' && parts[len(parts)-1][0] <= 'Z' {
				symbols = []string{parts[len(parts)-1]}
				modulePath = strings.Join(parts[:len(parts)-1], "::")
			}
			imports = append(imports, &model.ImportInfo{ModulePath: modulePath, Symbols: symbols, Line: i + 1})
		}
	}
	return imports
}
