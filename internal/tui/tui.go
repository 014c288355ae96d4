package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/raptor-audit/cairo-parser/internal/analysis"
	"github.com/raptor-audit/cairo-parser/internal/model"
)

type modelT struct {
	result   *model.Result
	analysis map[string]*analysis.ContractAnalysis
	cursor   int
}

func initialModel(result *model.Result, an []*analysis.ContractAnalysis) modelT {
	byName := make(map[string]*analysis.ContractAnalysis, len(an))
	for _, a := range an {
		byName[a.Contract] = a
	}
	return modelT{result: result, analysis: byName}
}

func (m modelT) Init() tea.Cmd { return nil }

func (m modelT) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.result.Order)-1 {
				m.cursor++
			}
		}
	}
	return m, nil
}

func (m modelT) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Contracts (%d)  [q to quit]\n\n", len(m.result.Order))
	for i, name := range m.result.Order {
		c := m.result.Contracts[name]
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		fmt.Fprintf(&b, "%s%s %s  fns=%d storage=%d imports=%d\n",
			prefix, c.Kind, c.Name, len(c.Functions), len(c.StorageVars), len(c.Imports))
	}

	if len(m.result.Order) > 0 {
		name := m.result.Order[m.cursor]
		if a, ok := m.analysis[name]; ok {
			fmt.Fprintf(&b, "\n%s analysis:\n", name)
			for _, fn := range a.Functions {
				fmt.Fprintf(&b, "  %s  body=%v warnings=%d\n", fn.FunctionName, fn.HasBody, len(fn.Warnings))
				for _, w := range fn.Warnings {
					fmt.Fprintf(&b, "    line %d: [%s] %s\n", w.Line, w.Kind, w.Message)
				}
			}
		}
	}
	return b.String()
}

// Run launches a minimal browser over parse and analysis results.
func Run(result *model.Result, an []*analysis.ContractAnalysis) error {
	p := tea.NewProgram(initialModel(result, an))
	_, err := p.Run()
	return err
}
