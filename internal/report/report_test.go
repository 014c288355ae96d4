package report

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raptor-audit/cairo-parser/internal/model"
)

func sampleResult() *model.Result {
	stub := &model.ContractInfo{
		Name:     "array",
		FilePath: "<stub:core::array>",
		Kind:     model.KindStub,
	}
	m := &model.ContractInfo{
		Name:     "M",
		FilePath: "m.cairo",
		Kind:     model.KindModule,
		Imports: []*model.ImportInfo{
			{ModulePath: "core::array", Symbols: []string{"ArrayTrait"}, Line: 1, StubCreated: true},
		},
		StubModules: map[string]*model.ContractInfo{"core::array": stub},
	}
	return &model.Result{
		Metadata:  model.Metadata{TotalFiles: 1, TotalContracts: 1, StubbingEnabled: true},
		Contracts: map[string]*model.ContractInfo{"M": m},
		Order:     []string{"M"},
		StubReport: &model.StubReport{
			TotalStubs:     1,
			TotalSymbols:   2,
			StubbedModules: []string{"core::array"},
			Stubs: map[string]model.StubDetail{
				"core::array": {FilePath: "<stub:core::array>", Functions: 0},
			},
		},
	}
}

func TestJSONShape(t *testing.T) {
	data, err := ToJSON(sampleResult(), nil, nil)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "metadata")
	assert.Contains(t, decoded, "contracts")
	assert.Contains(t, decoded, "stub_report")
	assert.NotContains(t, decoded, "analysis")

	contracts := decoded["contracts"].(map[string]any)
	m := contracts["M"].(map[string]any)
	assert.Equal(t, "module", m["kind"])
	stubMods := m["stub_modules"].(map[string]any)
	assert.Contains(t, stubMods, "core::array")
}

func TestJSONDeterministic(t *testing.T) {
	a, err := ToJSON(sampleResult(), nil, nil)
	require.NoError(t, err)
	b, err := ToJSON(sampleResult(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestYAMLMatchesJSONShape(t *testing.T) {
	data, err := ToYAML(sampleResult(), nil, nil)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "metadata:")
	assert.Contains(t, text, "stub_report:")
	assert.Contains(t, text, "total_stubs: 1")
}

func TestSummaryText(t *testing.T) {
	text := Summary(sampleResult(), true)
	assert.Contains(t, text, "Cairo Parser Results")
	assert.Contains(t, text, "MODULE: M")
	assert.Contains(t, text, "core::array")
	assert.Contains(t, text, "Stub Report")
	assert.True(t, strings.Contains(text, "[STUBBED] core::array {ArrayTrait}"))
}

func TestSummaryOmitsStubReportByDefault(t *testing.T) {
	text := Summary(sampleResult(), false)
	assert.NotContains(t, text, "Stub Report")
}
