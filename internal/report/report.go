// Package report renders a run's results. The JSON shape is authoritative;
// YAML is a faithful rendering of the same tree. Map keys serialize in
// sorted order and arrays keep input-file order, so identical inputs produce
// byte-identical output.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raptor-audit/cairo-parser/internal/analysis"
	"github.com/raptor-audit/cairo-parser/internal/model"
)

type contractJSON struct {
	Name            string                  `json:"name" yaml:"name"`
	FilePath        string                  `json:"file_path" yaml:"file_path"`
	Kind            model.EntityKind        `json:"kind" yaml:"kind"`
	Functions       []*model.FunctionInfo   `json:"functions" yaml:"functions"`
	StorageVars     []model.StorageVarInfo  `json:"storage_vars" yaml:"storage_vars"`
	Events          []model.EventInfo       `json:"events" yaml:"events"`
	Imports         []*model.ImportInfo     `json:"imports" yaml:"imports"`
	StubModules     map[string]stubJSON     `json:"stub_modules" yaml:"stub_modules"`
	UnresolvedCalls []string                `json:"unresolved_calls" yaml:"unresolved_calls"`
	UnresolvedTypes []string                `json:"unresolved_types" yaml:"unresolved_types"`
	ParseErrors     []string                `json:"parse_errors" yaml:"parse_errors"`
	ParseWarnings   []string                `json:"parse_warnings" yaml:"parse_warnings"`
}

type stubJSON struct {
	Name      string                `json:"name" yaml:"name"`
	FilePath  string                `json:"file_path" yaml:"file_path"`
	Kind      model.EntityKind      `json:"kind" yaml:"kind"`
	Functions []*model.FunctionInfo `json:"functions" yaml:"functions"`
	Warnings  []string              `json:"warnings" yaml:"warnings"`
}

type rootJSON struct {
	Metadata        model.Metadata                 `json:"metadata" yaml:"metadata"`
	Contracts       map[string]contractJSON        `json:"contracts" yaml:"contracts"`
	StubReport      *model.StubReport              `json:"stub_report" yaml:"stub_report"`
	Analysis        []*analysis.ContractAnalysis   `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	AnalysisSummary *analysis.Summary              `json:"analysis_summary,omitempty" yaml:"analysis_summary,omitempty"`
}

func buildRoot(result *model.Result, an []*analysis.ContractAnalysis, summary *analysis.Summary) rootJSON {
	root := rootJSON{
		Metadata:        result.Metadata,
		Contracts:       make(map[string]contractJSON, len(result.Contracts)),
		StubReport:      result.StubReport,
		Analysis:        an,
		AnalysisSummary: summary,
	}
	for name, c := range result.Contracts {
		root.Contracts[name] = toContractJSON(c)
	}
	return root
}

func toContractJSON(c *model.ContractInfo) contractJSON {
	out := contractJSON{
		Name:            c.Name,
		FilePath:        c.FilePath,
		Kind:            c.Kind,
		Functions:       c.Functions,
		StorageVars:     c.StorageVars,
		Events:          c.Events,
		Imports:         c.Imports,
		StubModules:     make(map[string]stubJSON, len(c.StubModules)),
		UnresolvedCalls: notNil(c.UnresolvedCalls),
		UnresolvedTypes: notNil(c.UnresolvedTypes),
		ParseErrors:     notNil(c.ParseErrors),
		ParseWarnings:   notNil(c.ParseWarnings),
	}
	if out.Functions == nil {
		out.Functions = []*model.FunctionInfo{}
	}
	if out.StorageVars == nil {
		out.StorageVars = []model.StorageVarInfo{}
	}
	if out.Events == nil {
		out.Events = []model.EventInfo{}
	}
	if out.Imports == nil {
		out.Imports = []*model.ImportInfo{}
	}
	for path, stub := range c.StubModules {
		fns := stub.Functions
		if fns == nil {
			fns = []*model.FunctionInfo{}
		}
		out.StubModules[path] = stubJSON{
			Name:      stub.Name,
			FilePath:  stub.FilePath,
			Kind:      stub.Kind,
			Functions: fns,
			Warnings:  notNil(stub.ParseWarnings),
		}
	}
	return out
}

func notNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ToJSON renders the authoritative JSON report.
func ToJSON(result *model.Result, an []*analysis.ContractAnalysis, summary *analysis.Summary) ([]byte, error) {
	return json.MarshalIndent(buildRoot(result, an, summary), "", "  ")
}

// ToYAML renders the same tree as YAML.
func ToYAML(result *model.Result, an []*analysis.ContractAnalysis, summary *analysis.Summary) ([]byte, error) {
	return yaml.Marshal(buildRoot(result, an, summary))
}

// Summary renders the human-readable text report.
func Summary(result *model.Result, includeStubReport bool) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(&b, "%s\nCairo Parser Results\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Total Files: %d\n", result.Metadata.TotalFiles)
	fmt.Fprintf(&b, "Total Contracts: %d\n", result.Metadata.TotalContracts)

	for _, name := range result.Order {
		writeContract(&b, result.Contracts[name])
	}

	if includeStubReport && result.StubReport != nil {
		fmt.Fprintf(&b, "\n%s\nStub Report\n%s\n", rule, rule)
		fmt.Fprintf(&b, "Total Stubs: %d\n", result.StubReport.TotalStubs)
		fmt.Fprintf(&b, "Total Resolved: %d\n", result.StubReport.TotalResolved)
		fmt.Fprintf(&b, "Total Symbols: %d\n", result.StubReport.TotalSymbols)
		if len(result.StubReport.StubbedModules) > 0 {
			fmt.Fprintf(&b, "Stubbed Modules:\n")
			for _, m := range result.StubReport.StubbedModules {
				fmt.Fprintf(&b, "  - %s\n", m)
			}
		}
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}
	for _, e := range result.IOErrors {
		fmt.Fprintf(&b, "Error: %s\n", e)
	}
	return b.String()
}

func writeContract(b *strings.Builder, c *model.ContractInfo) {
	fmt.Fprintf(b, "\n%s: %s\n", strings.ToUpper(string(c.Kind)), c.Name)
	fmt.Fprintf(b, "  File: %s\n", c.FilePath)

	if len(c.Functions) > 0 {
		fmt.Fprintf(b, "  Functions (%d):\n", len(c.Functions))
		for _, fn := range c.Functions {
			marker := ""
			if fn.IsStub {
				marker = " [STUB]"
			}
			fmt.Fprintf(b, "    - %s (%s)%s\n", fn.Name, fn.Visibility, marker)
		}
	}
	if len(c.StorageVars) > 0 {
		fmt.Fprintf(b, "  Storage Variables (%d):\n", len(c.StorageVars))
		for _, v := range c.StorageVars {
			fmt.Fprintf(b, "    - %s: %s\n", v.Name, v.Type)
		}
	}
	if len(c.Events) > 0 {
		fmt.Fprintf(b, "  Events (%d):\n", len(c.Events))
		for _, ev := range c.Events {
			fmt.Fprintf(b, "    - %s\n", ev.Name)
		}
	}
	if len(c.Imports) > 0 {
		fmt.Fprintf(b, "  Imports (%d):\n", len(c.Imports))
		for _, imp := range c.Imports {
			status := "ok"
			if !imp.Resolved {
				status = "STUBBED"
				if !imp.StubCreated {
					status = "UNRESOLVED"
				}
			}
			symbols := ""
			if len(imp.Symbols) > 0 {
				symbols = " {" + strings.Join(imp.Symbols, ", ") + "}"
			}
			fmt.Fprintf(b, "    [%s] %s%s\n", status, imp.ModulePath, symbols)
		}
	}
	if len(c.StubModules) > 0 {
		fmt.Fprintf(b, "  Stub Modules Created (%d):\n", len(c.StubModules))
		var paths []string
		for p := range c.StubModules {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Fprintf(b, "    - %s\n", p)
		}
	}
	for _, w := range c.ParseWarnings {
		fmt.Fprintf(b, "  Warning: %s\n", w)
	}
	for _, e := range c.ParseErrors {
		fmt.Fprintf(b, "  Error: %s\n", e)
	}
}

// WarningsText renders analysis warnings grouped by contract and function.
func WarningsText(results []*analysis.ContractAnalysis) string {
	var b strings.Builder
	found := false
	for _, r := range results {
		for _, fn := range r.Functions {
			if len(fn.Warnings) == 0 {
				continue
			}
			found = true
			fmt.Fprintf(&b, "\n%s::%s:\n", r.Contract, fn.FunctionName)
			for _, w := range fn.Warnings {
				fmt.Fprintf(&b, "  Line %d: [%s] %s\n", w.Line, w.Kind, w.Message)
			}
		}
	}
	if !found {
		return "No warnings found.\n"
	}
	return b.String()
}

// SummaryStatsText renders the aggregate analysis statistics.
func SummaryStatsText(s *analysis.Summary) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(&b, "%s\nCairo Contract Analysis Summary\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Contracts analyzed: %d\n", s.TotalContracts)
	fmt.Fprintf(&b, "Total functions: %d\n", s.TotalFunctions)
	fmt.Fprintf(&b, "  - With body: %d\n", s.FunctionsWithBody)
	fmt.Fprintf(&b, "  - Without body: %d\n", s.FunctionsWithoutBody)
	fmt.Fprintf(&b, "Total warnings: %d\n", s.TotalWarnings)
	fmt.Fprintf(&b, "Storage reads: %d\n", s.TotalStorageReads)
	fmt.Fprintf(&b, "Storage writes: %d\n", s.TotalStorageWrites)
	fmt.Fprintf(&b, "External calls: %d\n", s.TotalExternalCalls)
	return b.String()
}

// AnalysisOnly renders just the analysis array and its summary, for the
// separate analysis output file.
func AnalysisOnly(an []*analysis.ContractAnalysis, summary *analysis.Summary, format string) ([]byte, error) {
	payload := struct {
		Analysis        []*analysis.ContractAnalysis `json:"analysis" yaml:"analysis"`
		AnalysisSummary *analysis.Summary            `json:"analysis_summary" yaml:"analysis_summary"`
	}{an, summary}
	switch format {
	case "yaml", "yml":
		return yaml.Marshal(payload)
	default:
		return json.MarshalIndent(payload, "", "  ")
	}
}
