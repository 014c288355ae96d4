package analysis

import (
	"sort"
	"strings"
)

// DefUseChain records the nodes that define a variable and the nodes that
// use it where at least one of those definitions reaches the use.
type DefUseChain struct {
	Variable    string `json:"variable" yaml:"variable"`
	Definitions []int  `json:"definitions" yaml:"definitions"`
	Uses        []int  `json:"uses" yaml:"uses"`
}

type StorageAccess struct {
	AccessType string `json:"access_type" yaml:"access_type"`
	StorageVar string `json:"storage_var" yaml:"storage_var"`
	Line       int    `json:"line" yaml:"line"`
	NodeID     int    `json:"node_id" yaml:"node_id"`
}

type ExternalCall struct {
	FunctionName string   `json:"function_name" yaml:"function_name"`
	Arguments    []string `json:"arguments" yaml:"arguments"`
	Line         int      `json:"line" yaml:"line"`
	NodeID       int      `json:"node_id" yaml:"node_id"`
	Internal     bool     `json:"internal" yaml:"internal"`
}

type Warning struct {
	Kind     string `json:"kind" yaml:"kind"`
	Variable string `json:"variable,omitempty" yaml:"variable,omitempty"`
	Line     int    `json:"line" yaml:"line"`
	Message  string `json:"message" yaml:"message"`
}

// DataflowResult bundles the per-function dataflow outputs.
type DataflowResult struct {
	DefUseChains  []DefUseChain   `json:"def_use_chains" yaml:"def_use_chains"`
	StorageAccess []StorageAccess `json:"storage_accesses" yaml:"storage_accesses"`
	ExternalCalls []ExternalCall  `json:"external_calls" yaml:"external_calls"`
}

type def struct {
	variable string
	node     int
}

// Dataflow runs the classical analyses over a CFG: reaching definitions for
// def-use chains, storage access and external call records, and the
// uninitialized-use / unused-definition / unreachable-code warnings.
// params are the function's parameter names; imported qualifies callees as
// external symbols.
type Dataflow struct {
	g        *Graph
	params   map[string]bool
	imported map[string]bool

	reachIn map[int]map[def]bool
}

func NewDataflow(g *Graph, params []string, imported map[string]bool) *Dataflow {
	pm := make(map[string]bool, len(params))
	for _, p := range params {
		pm[p] = true
	}
	if imported == nil {
		imported = map[string]bool{}
	}
	return &Dataflow{g: g, params: pm, imported: imported}
}

// Run computes all analyses and the warning list.
func (d *Dataflow) Run() (*DataflowResult, []Warning) {
	d.computeReaching()
	res := &DataflowResult{
		DefUseChains:  d.defUseChains(),
		StorageAccess: d.storageAccesses(),
		ExternalCalls: d.externalCalls(),
	}
	var warnings []Warning
	warnings = append(warnings, d.uninitializedUses()...)
	warnings = append(warnings, d.unusedDefinitions()...)
	warnings = append(warnings, d.unreachableCode()...)
	return res, warnings
}

func (d *Dataflow) defsAt(n *Node) []string {
	if n == nil || n.Stmt == nil || n.Stmt.Defined == "" {
		return nil
	}
	return []string{n.Stmt.Defined}
}

func (d *Dataflow) usesAt(n *Node) []string {
	if n == nil || n.Stmt == nil {
		return nil
	}
	return n.Stmt.Uses
}

// computeReaching is the standard forward union fixed point:
// OUT(n) = GEN(n) ∪ (IN(n) − KILL(n)), IN(n) = ⋃ OUT(p).
func (d *Dataflow) computeReaching() {
	nodes := d.g.Live()
	in := make(map[int]map[def]bool, len(nodes))
	out := make(map[int]map[def]bool, len(nodes))
	for _, n := range nodes {
		in[n.ID] = map[def]bool{}
		out[n.ID] = map[def]bool{}
	}

	changed := true
	for changed {
		changed = false
		for _, n := range nodes {
			newIn := map[def]bool{}
			for _, p := range n.Preds {
				for dd := range out[p] {
					newIn[dd] = true
				}
			}
			if !sameDefs(newIn, in[n.ID]) {
				in[n.ID] = newIn
				changed = true
			}
			newOut := map[def]bool{}
			killed := map[string]bool{}
			for _, v := range d.defsAt(n) {
				newOut[def{v, n.ID}] = true
				killed[v] = true
			}
			for dd := range newIn {
				if !killed[dd.variable] {
					newOut[dd] = true
				}
			}
			if !sameDefs(newOut, out[n.ID]) {
				out[n.ID] = newOut
				changed = true
			}
		}
	}
	d.reachIn = in
}

func sameDefs(a, b map[def]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// defUseChains builds one chain per defined variable. A use at a node is
// counted iff at least one definition of the variable reaches it.
func (d *Dataflow) defUseChains() []DefUseChain {
	defNodes := map[string][]int{}
	for _, n := range d.g.Live() {
		for _, v := range d.defsAt(n) {
			defNodes[v] = append(defNodes[v], n.ID)
		}
	}

	var vars []string
	for v := range defNodes {
		vars = append(vars, v)
	}
	sort.Strings(vars)

	chains := make([]DefUseChain, 0, len(vars))
	for _, v := range vars {
		chain := DefUseChain{Variable: v, Definitions: defNodes[v]}
		sort.Ints(chain.Definitions)
		for _, n := range d.g.Live() {
			if !containsStr(d.usesAt(n), v) {
				continue
			}
			for dd := range d.reachIn[n.ID] {
				if dd.variable == v {
					chain.Uses = append(chain.Uses, n.ID)
					break
				}
			}
		}
		sort.Ints(chain.Uses)
		chains = append(chains, chain)
	}
	return chains
}

func (d *Dataflow) storageAccesses() []StorageAccess {
	var out []StorageAccess
	for _, n := range d.g.Live() {
		if n.Stmt == nil {
			continue
		}
		switch n.Stmt.Kind {
		case StmtStorageRead:
			out = append(out, StorageAccess{AccessType: "read", StorageVar: n.Stmt.StorageVar, Line: n.Stmt.Line, NodeID: n.ID})
		case StmtStorageWrite:
			out = append(out, StorageAccess{AccessType: "write", StorageVar: n.Stmt.StorageVar, Line: n.Stmt.Line, NodeID: n.ID})
		}
	}
	return out
}

// externalCalls records every call statement. A call is external when its
// callee is an imported or stubbed symbol, when the statement is
// path-qualified (contains ::), or when it mentions a dispatcher; other calls
// are kept with internal=true.
func (d *Dataflow) externalCalls() []ExternalCall {
	var out []ExternalCall
	for _, n := range d.g.Live() {
		if n.Stmt == nil || n.Stmt.Kind != StmtCall {
			continue
		}
		external := d.imported[n.Stmt.Callee] ||
			strings.Contains(n.Stmt.Raw, "::") ||
			strings.Contains(strings.ToLower(n.Stmt.Raw), "dispatcher")
		out = append(out, ExternalCall{
			FunctionName: n.Stmt.Callee,
			Arguments:    n.Stmt.Args,
			Line:         n.Stmt.Line,
			NodeID:       n.ID,
			Internal:     !external,
		})
	}
	return out
}

// uninitializedUses runs definite assignment (forward intersection) over the
// reachable subgraph: a use warns when some entry path reaches it with no
// definition and the variable is not a parameter.
func (d *Dataflow) uninitializedUses() []Warning {
	reachable := d.g.Reachable()
	order := d.g.reversePostorder()

	in := map[int]map[string]bool{}
	out := map[int]map[string]bool{}
	for _, id := range order {
		in[id] = nil // nil marks "not yet computed" (top)
		out[id] = nil
	}

	copySet := func(m map[string]bool) map[string]bool {
		c := make(map[string]bool, len(m))
		for k := range m {
			c[k] = true
		}
		return c
	}

	entrySet := map[string]bool{}
	changed := true
	for changed {
		changed = false
		for _, id := range order {
			n := d.g.Node(id)
			var newIn map[string]bool
			if id == d.g.Entry {
				newIn = entrySet
			} else {
				for _, p := range n.Preds {
					if !reachable[p] || out[p] == nil {
						continue
					}
					if newIn == nil {
						newIn = copySet(out[p])
						continue
					}
					for k := range newIn {
						if !out[p][k] {
							delete(newIn, k)
						}
					}
				}
			}
			if newIn == nil {
				continue
			}
			in[id] = newIn
			newOut := copySet(newIn)
			for _, v := range d.defsAt(n) {
				newOut[v] = true
			}
			if out[id] == nil || !sameStrSet(newOut, out[id]) {
				out[id] = newOut
				changed = true
			}
		}
	}

	var warnings []Warning
	for _, id := range order {
		n := d.g.Node(id)
		if n.Stmt == nil || in[id] == nil {
			continue
		}
		for _, v := range d.usesAt(n) {
			if d.params[v] || in[id][v] {
				continue
			}
			warnings = append(warnings, Warning{
				Kind:     "uninitialized_use",
				Variable: v,
				Line:     n.Stmt.Line,
				Message:  "variable '" + v + "' may be used before initialization",
			})
		}
	}
	return warnings
}

func sameStrSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// unusedDefinitions warns on definitions that reach no downstream use.
// Definitions shadowing a parameter and names starting with underscore are
// excluded.
func (d *Dataflow) unusedDefinitions() []Warning {
	reachable := d.g.Reachable()
	var warnings []Warning
	for _, n := range d.g.Live() {
		for _, v := range d.defsAt(n) {
			if strings.HasPrefix(v, "_") || d.params[v] {
				continue
			}
			used := false
			this := def{v, n.ID}
			for _, m := range d.g.Live() {
				if !reachable[m.ID] || !containsStr(d.usesAt(m), v) {
					continue
				}
				if d.reachIn[m.ID][this] {
					used = true
					break
				}
			}
			if !used {
				warnings = append(warnings, Warning{
					Kind:     "unused_definition",
					Variable: v,
					Line:     n.Stmt.Line,
					Message:  "variable '" + v + "' is defined but never used",
				})
			}
		}
	}
	return warnings
}

// unreachableCode flags statement-bearing nodes the entry cannot reach.
func (d *Dataflow) unreachableCode() []Warning {
	reachable := d.g.Reachable()
	var warnings []Warning
	for _, n := range d.g.Live() {
		if n.Stmt == nil || reachable[n.ID] {
			continue
		}
		warnings = append(warnings, Warning{
			Kind:    "unreachable_code",
			Line:    n.Stmt.Line,
			Message: "statement is unreachable",
		})
	}
	return warnings
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
