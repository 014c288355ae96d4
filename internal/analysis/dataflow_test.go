package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raptor-audit/cairo-parser/internal/model"
)

func analyzeBody(t *testing.T, body string, params []string, imported map[string]bool) (*DataflowResult, []Warning) {
	t.Helper()
	g := BuildCFG("f", ParseStatements(body, 1))
	return NewDataflow(g, params, imported).Run()
}

func TestStorageAccessDetection(t *testing.T) {
	// fn g() { let v = self.storage.balance.read(); self.storage.balance.write(v + 1); }
	body := "let v = self.storage.balance.read();\nself.storage.balance.write(v + 1);"
	res, warnings := analyzeBody(t, body, nil, nil)

	require.Len(t, res.StorageAccess, 2)
	assert.Equal(t, "read", res.StorageAccess[0].AccessType)
	assert.Equal(t, "balance", res.StorageAccess[0].StorageVar)
	assert.Equal(t, 1, res.StorageAccess[0].Line)
	assert.Equal(t, "write", res.StorageAccess[1].AccessType)
	assert.Equal(t, "balance", res.StorageAccess[1].StorageVar)
	assert.Equal(t, 2, res.StorageAccess[1].Line)

	require.Len(t, res.DefUseChains, 1)
	chain := res.DefUseChains[0]
	assert.Equal(t, "v", chain.Variable)
	assert.Len(t, chain.Definitions, 1)
	assert.Len(t, chain.Uses, 1)

	assert.Empty(t, warnings)
}

func TestUninitializedUse(t *testing.T) {
	// fn h(cond) { let x; if cond { x = 1; } return x; }
	body := "let x;\nif cond {\n    x = 1;\n}\nreturn x;"
	_, warnings := analyzeBody(t, body, []string{"cond"}, nil)

	var uninit []Warning
	for _, w := range warnings {
		if w.Kind == "uninitialized_use" {
			uninit = append(uninit, w)
		}
	}
	require.Len(t, uninit, 1)
	assert.Equal(t, "x", uninit[0].Variable)
	assert.Equal(t, 5, uninit[0].Line)
}

func TestNoUninitializedWhenAllPathsDefine(t *testing.T) {
	body := "let x;\nif cond {\n    x = 1;\n} else {\n    x = 2;\n}\nreturn x;"
	_, warnings := analyzeBody(t, body, []string{"cond"}, nil)
	for _, w := range warnings {
		assert.NotEqual(t, "uninitialized_use", w.Kind, w.Message)
	}
}

func TestParameterUseIsNotUninitialized(t *testing.T) {
	body := "return x;"
	_, warnings := analyzeBody(t, body, []string{"x"}, nil)
	assert.Empty(t, warnings)
}

func TestUnusedDefinition(t *testing.T) {
	body := "let x = 1;\nreturn;"
	_, warnings := analyzeBody(t, body, nil, nil)
	require.Len(t, warnings, 1)
	assert.Equal(t, "unused_definition", warnings[0].Kind)
	assert.Equal(t, "x", warnings[0].Variable)
	assert.Equal(t, 1, warnings[0].Line)
}

func TestUnderscoreDefinitionNotReported(t *testing.T) {
	body := "let _x = 1;\nreturn;"
	_, warnings := analyzeBody(t, body, nil, nil)
	assert.Empty(t, warnings)
}

func TestParameterShadowingNotReported(t *testing.T) {
	body := "amount = 0;\nreturn;"
	_, warnings := analyzeBody(t, body, []string{"amount"}, nil)
	for _, w := range warnings {
		assert.NotEqual(t, "unused_definition", w.Kind)
	}
}

func TestRedefinitionKillsPreviousDef(t *testing.T) {
	body := "let x = 1;\nx = 2;\nreturn x;"
	res, _ := analyzeBody(t, body, nil, nil)
	require.Len(t, res.DefUseChains, 1)
	chain := res.DefUseChains[0]
	assert.Len(t, chain.Definitions, 2)
	// Only the second definition reaches the return.
	require.Len(t, chain.Uses, 1)
}

func TestDefUseSoundness(t *testing.T) {
	body := "let a = 1;\nif a {\n    b = a;\n} else {\n    b = 2;\n}\nreturn b;"
	res, _ := analyzeBody(t, body, nil, nil)
	for _, chain := range res.DefUseChains {
		for range chain.Uses {
			assert.NotEmpty(t, chain.Definitions, chain.Variable)
		}
	}
}

func TestExternalCallQualification(t *testing.T) {
	body := "helper(x);\ndispatcher.transfer(to, amount);\nIERC20::balance_of(account);"
	res, _ := analyzeBody(t, body, []string{"x", "to", "amount", "account"}, map[string]bool{"balance_of": true})

	require.Len(t, res.ExternalCalls, 3)
	byName := map[string]ExternalCall{}
	for _, c := range res.ExternalCalls {
		byName[c.FunctionName] = c
	}
	assert.True(t, byName["helper"].Internal, "plain intra-function call")
	assert.False(t, byName["transfer"].Internal, "dispatcher shape")
	assert.False(t, byName["balance_of"].Internal, "imported symbol")
	assert.Equal(t, []string{"to", "amount"}, byName["transfer"].Arguments)
}

func TestUnreachableCodeWarning(t *testing.T) {
	body := "return;\nlet y = 1;"
	_, warnings := analyzeBody(t, body, nil, nil)
	var kinds []string
	for _, w := range warnings {
		kinds = append(kinds, w.Kind)
	}
	assert.Contains(t, kinds, "unreachable_code")
}

func TestAnalyzeFunctionSkipsBodyless(t *testing.T) {
	fn := &model.FunctionInfo{Name: "sig_only", HasBody: false}
	res := AnalyzeFunction(fn, nil, Options{MaxPaths: 100})
	assert.False(t, res.HasBody)
	assert.Nil(t, res.CFG)
	assert.Nil(t, res.Dataflow)
}

func TestAnalyzeContractEndToEnd(t *testing.T) {
	c := &model.ContractInfo{
		Name: "Token",
		Kind: model.KindContract,
		Functions: []*model.FunctionInfo{
			{
				Name:       "get",
				Visibility: model.VisView,
				HasBody:    true,
				BodyText:   "\n    let v = self.storage.balance.read();\n    return v;\n",
				BodyStart:  1,
			},
			{Name: "decl_only"},
		},
	}
	res := AnalyzeContract(c, Options{MaxPaths: 100})
	require.Len(t, res.Functions, 2)
	assert.True(t, res.Functions[0].HasBody)
	require.NotNil(t, res.Functions[0].Dataflow)
	assert.Len(t, res.Functions[0].Dataflow.StorageAccess, 1)
	assert.False(t, res.Functions[1].HasBody)

	s := Summarize([]*ContractAnalysis{res})
	assert.Equal(t, 1, s.FunctionsWithBody)
	assert.Equal(t, 1, s.FunctionsWithoutBody)
	assert.Equal(t, 1, s.TotalStorageReads)
}
