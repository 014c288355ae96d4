// Package engine drives the pipeline: scan, Pass 1 (parse + symbol table),
// Pass 2 (link), Pass 3 (stub), then optional per-function analysis. Passes
// are strictly sequential; Pass 2 starts only after Pass 1 has finished
// globally.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/raptor-audit/cairo-parser/internal/analysis"
	"github.com/raptor-audit/cairo-parser/internal/cairo"
	"github.com/raptor-audit/cairo-parser/internal/config"
	"github.com/raptor-audit/cairo-parser/internal/linker"
	"github.com/raptor-audit/cairo-parser/internal/model"
	"github.com/raptor-audit/cairo-parser/internal/scanner"
)

// Engine accumulates state across Run calls: a second run over additional
// roots re-links everything, upgrading modules that were stubbed before.
type Engine struct {
	opts   config.Options
	parser *cairo.Parser
	linker *linker.Linker

	seen     map[string]bool
	parses   []*cairo.FileParse
	ioErrors []string

	// Progress receives pass-by-pass status lines; nil silences them.
	Progress io.Writer
}

func New(opts config.Options) *Engine {
	return &Engine{
		opts:   opts,
		parser: cairo.NewParser(opts.Cache),
		linker: linker.New(),
		seen:   make(map[string]bool),
	}
}

// Output bundles everything the reporters consume.
type Output struct {
	Result   *model.Result
	Analysis []*analysis.ContractAnalysis
	Summary  *analysis.Summary
}

// Run executes the pipeline over roots. It fails fast only when a root is
// unreadable; unreadable files are skipped and recorded at the run level.
func (e *Engine) Run(ctx context.Context, roots []string) (*Output, error) {
	files, scanWarnings, err := scanner.Scan(roots, e.opts.ExcludeTests)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var newFiles []scanner.File
	for _, f := range files {
		if !e.seen[f.AbsPath] {
			e.seen[f.AbsPath] = true
			newFiles = append(newFiles, f)
		}
	}

	e.progressf("[pass 1/3] parsing %d files from %d roots", len(newFiles), len(roots))
	e.parseAll(newFiles)

	table := linker.BuildTable(e.parses)
	e.progressf("[pass 1/3] symbol table built: %d symbols", table.Len())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.progressf("[pass 2/3] resolving imports from symbol table")
	if e.opts.StubMissing {
		e.progressf("[pass 3/3] creating stubs for external dependencies")
	}
	e.linker.Link(table, e.parses, e.opts.StubMissing)

	report := e.linker.Report(table)
	e.progressf("[done] resolved: %d, stubbed: %d", report.TotalResolved, report.TotalStubs)

	result := &model.Result{
		Contracts:  make(map[string]*model.ContractInfo),
		StubReport: report,
		IOErrors:   e.ioErrors,
		Warnings:   scanWarnings,
	}
	for _, fp := range e.parses {
		for _, entity := range fp.Entities {
			if entity == fp.FileModule() && !fileModuleHasContent(entity, fp) {
				// The synthesized file module stays a symbol-table entry
				// unless it actually owns declarations.
				continue
			}
			if _, dup := result.Contracts[entity.Name]; dup {
				continue
			}
			result.Contracts[entity.Name] = entity
			result.Order = append(result.Order, entity.Name)
		}
	}
	result.Metadata = model.Metadata{
		TotalFiles:      len(e.parses),
		TotalContracts:  len(result.Contracts),
		StubbingEnabled: e.opts.StubMissing,
	}

	out := &Output{Result: result}
	if e.opts.Analyze {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.progressf("[analysis] building CFGs and running dataflow")
		out.Analysis = e.analyzeAll(result)
		out.Summary = analysis.Summarize(out.Analysis)
		e.progressf("[analysis] analyzed %d functions, %d warnings",
			out.Summary.FunctionsWithBody, out.Summary.TotalWarnings)
	}
	return out, nil
}

// parseAll runs Pass 1 over new files with a bounded worker pool. Results
// are committed in input order so the first-wins rule stays deterministic.
func (e *Engine) parseAll(files []scanner.File) {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	results := make([]*cairo.FileParse, len(files))
	errs := make([]string, len(files))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, f := range files {
		i, f := i, f
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			content, err := os.ReadFile(f.AbsPath)
			if err != nil {
				errs[i] = fmt.Sprintf("io_error: %s: %v", f.Path, err)
				return
			}
			results[i] = e.parser.ParseFile(f.Path, f.ModulePath, string(content))
		}()
	}
	wg.Wait()
	for i := range files {
		if errs[i] != "" {
			e.ioErrors = append(e.ioErrors, errs[i])
			continue
		}
		if results[i] != nil {
			e.parses = append(e.parses, results[i])
		}
	}
}

// analyzeAll runs CFG and dataflow analysis per contract. Contracts are
// independent; the pool is bounded and results keep input-file order.
func (e *Engine) analyzeAll(result *model.Result) []*analysis.ContractAnalysis {
	var targets []*model.ContractInfo
	for _, name := range result.Order {
		c := result.Contracts[name]
		if c.Kind != model.KindStub {
			targets = append(targets, c)
		}
	}
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	out := make([]*analysis.ContractAnalysis, len(targets))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, c := range targets {
		i, c := i, c
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = analysis.AnalyzeContract(c, analysis.Options{MaxPaths: e.opts.MaxPaths})
		}()
	}
	wg.Wait()
	return out
}

func fileModuleHasContent(c *model.ContractInfo, fp *cairo.FileParse) bool {
	if len(c.Functions) > 0 || len(c.StorageVars) > 0 || len(c.Events) > 0 {
		return true
	}
	return len(fp.Entities) == 1
}

func (e *Engine) progressf(format string, args ...any) {
	if e.Progress != nil {
		fmt.Fprintf(e.Progress, format+"\n", args...)
	}
}
