// Package analysis builds per-function control-flow graphs from lexically
// parsed bodies and runs the dataflow analyses over them.
package analysis

import (
	"github.com/raptor-audit/cairo-parser/internal/model"
)

// NodeJSON is the serialized form of a CFG node.
type NodeJSON struct {
	ID           int        `json:"id" yaml:"id"`
	Kind         NodeKind   `json:"kind" yaml:"kind"`
	Statement    *Statement `json:"statement,omitempty" yaml:"statement,omitempty"`
	Successors   []int      `json:"successors" yaml:"successors"`
	Predecessors []int      `json:"predecessors" yaml:"predecessors"`
}

type EdgeJSON struct {
	From int `json:"from" yaml:"from"`
	To   int `json:"to" yaml:"to"`
}

// CFGJSON is the wire shape of a function CFG.
type CFGJSON struct {
	Nodes     []NodeJSON `json:"nodes" yaml:"nodes"`
	Edges     []EdgeJSON `json:"edges" yaml:"edges"`
	EntryNode int        `json:"entry_node" yaml:"entry_node"`
	ExitNodes []int      `json:"exit_nodes" yaml:"exit_nodes"`
}

// Export renders the graph into its serializable shape, in node id order.
func (g *Graph) Export() *CFGJSON {
	out := &CFGJSON{EntryNode: g.Entry, ExitNodes: g.Exits}
	for _, n := range g.Live() {
		succs := n.Succs
		if succs == nil {
			succs = []int{}
		}
		preds := n.Preds
		if preds == nil {
			preds = []int{}
		}
		out.Nodes = append(out.Nodes, NodeJSON{
			ID:           n.ID,
			Kind:         n.Kind,
			Statement:    n.Stmt,
			Successors:   succs,
			Predecessors: preds,
		})
		for _, s := range n.Succs {
			out.Edges = append(out.Edges, EdgeJSON{From: n.ID, To: s})
		}
	}
	return out
}

// FunctionAnalysis holds the analysis output for one function.
type FunctionAnalysis struct {
	FunctionName   string          `json:"function_name" yaml:"function_name"`
	HasBody        bool            `json:"has_body" yaml:"has_body"`
	CFG            *CFGJSON        `json:"cfg,omitempty" yaml:"cfg,omitempty"`
	Dataflow       *DataflowResult `json:"dataflow,omitempty" yaml:"dataflow,omitempty"`
	Warnings       []Warning       `json:"warnings" yaml:"warnings"`
	PathsTruncated bool            `json:"paths_truncated,omitempty" yaml:"paths_truncated,omitempty"`
}

// ContractAnalysis holds the results for all functions of one contract.
type ContractAnalysis struct {
	Contract  string              `json:"contract" yaml:"contract"`
	FilePath  string              `json:"file_path" yaml:"file_path"`
	Functions []*FunctionAnalysis `json:"functions" yaml:"functions"`
}

// Options tunes the analyzer.
type Options struct {
	MaxPaths int
}

// AnalyzeContract runs statement parsing, CFG construction and dataflow for
// every function of a contract that carries a body. Malformed bodies never
// abort the contract; the analyzer records what it can.
func AnalyzeContract(c *model.ContractInfo, opts Options) *ContractAnalysis {
	out := &ContractAnalysis{Contract: c.Name, FilePath: c.FilePath}
	imported := c.ImportedSymbols()
	for _, fn := range c.Functions {
		out.Functions = append(out.Functions, AnalyzeFunction(fn, imported, opts))
	}
	return out
}

// AnalyzeFunction analyzes a single function. Functions without a body are
// reported with has_body=false and skipped.
func AnalyzeFunction(fn *model.FunctionInfo, imported map[string]bool, opts Options) *FunctionAnalysis {
	res := &FunctionAnalysis{FunctionName: fn.Name, HasBody: fn.HasBody, Warnings: []Warning{}}
	if !fn.HasBody {
		return res
	}

	stmts := ParseStatements(fn.BodyText, fn.BodyStart)
	g := BuildCFG(fn.Name, stmts)
	res.CFG = g.Export()

	params := make([]string, 0, len(fn.Parameters))
	for _, p := range fn.Parameters {
		if p.Name != "" {
			params = append(params, p.Name)
		}
	}
	df := NewDataflow(g, params, imported)
	result, warnings := df.Run()
	res.Dataflow = result
	res.Warnings = warnings
	if res.Warnings == nil {
		res.Warnings = []Warning{}
	}

	if _, truncated := g.Paths(opts.MaxPaths); truncated {
		res.PathsTruncated = true
	}
	return res
}

// Summary aggregates analysis results across contracts.
type Summary struct {
	TotalContracts       int `json:"total_contracts" yaml:"total_contracts"`
	TotalFunctions       int `json:"total_functions" yaml:"total_functions"`
	FunctionsWithBody    int `json:"functions_with_body" yaml:"functions_with_body"`
	FunctionsWithoutBody int `json:"functions_without_body" yaml:"functions_without_body"`
	TotalWarnings        int `json:"total_warnings" yaml:"total_warnings"`
	TotalStorageReads    int `json:"total_storage_reads" yaml:"total_storage_reads"`
	TotalStorageWrites   int `json:"total_storage_writes" yaml:"total_storage_writes"`
	TotalExternalCalls   int `json:"total_external_calls" yaml:"total_external_calls"`
}

func Summarize(results []*ContractAnalysis) *Summary {
	s := &Summary{TotalContracts: len(results)}
	for _, r := range results {
		for _, f := range r.Functions {
			s.TotalFunctions++
			if f.HasBody {
				s.FunctionsWithBody++
			} else {
				s.FunctionsWithoutBody++
			}
			s.TotalWarnings += len(f.Warnings)
			if f.Dataflow == nil {
				continue
			}
			for _, sa := range f.Dataflow.StorageAccess {
				if sa.AccessType == "read" {
					s.TotalStorageReads++
				} else {
					s.TotalStorageWrites++
				}
			}
			s.TotalExternalCalls += len(f.Dataflow.ExternalCalls)
		}
	}
	return s
}
