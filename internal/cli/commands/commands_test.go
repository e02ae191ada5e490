package commands_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/fedplan/internal/cli/testutil"
	"github.com/leapstack-labs/fedplan/pkg/parser"
	"github.com/leapstack-labs/fedplan/pkg/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type stepJSON struct {
	Step        int    `json:"step"`
	Type        string `json:"type"`
	Integration string `json:"integration"`
	Query       string `json:"query"`
}

type planJSON struct {
	Steps      []stepJSON       `json:"steps"`
	ResultRefs map[string][]int `json:"result_refs"`
}

func decodePlan(t *testing.T, s string) planJSON {
	t.Helper()
	var p planJSON
	require.NoError(t, json.Unmarshal([]byte(s), &p), s)
	return p
}

func TestPlanCommandOutputModes(t *testing.T) {
	const sql = "SELECT * FROM int1.tab"
	tests := []struct {
		name    string
		mode    string
		wantOut []string
	}{
		{name: "text", mode: "text", wantOut: []string{"Plan (1 steps)", "[0] FetchDataframeStep", "integration=int1"}},
		{name: "table", mode: "table", wantOut: []string{"STEP", "DETAILS", "FetchDataframeStep"}},
		{name: "auto when piped", mode: "auto", wantOut: []string{"STEP", "FetchDataframeStep"}},
		{name: "yaml", mode: "yaml", wantOut: []string{"steps:", "type: FetchDataframeStep", "integration: int1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.SetupTestProject(t)
			res := p.Run(t, "", "plan", "-o", tt.mode, sql)
			require.NoError(t, res.Err, res.Stderr)
			for _, want := range tt.wantOut {
				assert.Contains(t, res.Stdout, want)
			}
			testutil.AssertNoANSI(t, res.Stdout)
		})
	}
}

func TestPlanCommandJSON(t *testing.T) {
	p := testutil.SetupTestProject(t)
	res := p.Run(t, "", "plan", "-o", "json", "SELECT col FROM int1.tab")
	require.NoError(t, res.Err, res.Stderr)

	got := decodePlan(t, res.Stdout)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, stepJSON{Step: 0, Type: "FetchDataframeStep", Integration: "int1", Query: "SELECT tab.col AS col FROM tab"}, got.Steps[0])
	assert.Empty(t, got.ResultRefs)
}

func TestPlanCommandInputs(t *testing.T) {
	t.Run("stdin uses the default namespace", func(t *testing.T) {
		p := testutil.SetupTestProject(t)
		res := p.Run(t, "SELECT * FROM tab;\n", "plan", "-o", "json")
		require.NoError(t, res.Err, res.Stderr)
		got := decodePlan(t, res.Stdout)
		require.Len(t, got.Steps, 1)
		assert.Equal(t, "int1", got.Steps[0].Integration)
	})

	t.Run("file", func(t *testing.T) {
		p := testutil.SetupTestProject(t)
		path := filepath.Join(p.Dir, "q.sql")
		require.NoError(t, os.WriteFile(path, []byte("SELECT * FROM int2.tab"), 0o600))

		res := p.Run(t, "", "plan", "-o", "json", "--file", path)
		require.NoError(t, res.Err, res.Stderr)
		assert.Equal(t, "int2", decodePlan(t, res.Stdout).Steps[0].Integration)
	})

	t.Run("extra catalog file", func(t *testing.T) {
		p := testutil.SetupTestProject(t)
		path := filepath.Join(p.Dir, "extra.yaml")
		require.NoError(t, os.WriteFile(path, []byte("integrations:\n  - name: extra\n"), 0o600))

		res := p.Run(t, "", "plan", "-o", "json", "--catalog", path, "SELECT * FROM extra.tab")
		require.NoError(t, res.Err, res.Stderr)
		assert.Equal(t, "extra", decodePlan(t, res.Stdout).Steps[0].Integration)
	})

	t.Run("empty statement", func(t *testing.T) {
		p := testutil.SetupTestProject(t)
		res := p.Run(t, "  \n", "plan")
		assert.EqualError(t, res.Err, "empty statement")
	})
}

func TestPlanCommandErrors(t *testing.T) {
	p := testutil.SetupTestProject(t)

	res := p.Run(t, "", "plan", "SELECT * FROM a.b.c.d.e")
	var perr *planner.PlanningError
	require.ErrorAs(t, res.Err, &perr)

	res = p.Run(t, "", "plan", "SELECT FROM WHERE")
	var parseErrs parser.ParseErrors
	assert.True(t, errors.As(res.Err, &parseErrs), "got %v", res.Err)
}

func TestExplainCommand(t *testing.T) {
	const sql = "SELECT * FROM int1.a JOIN int2.b ON a.id = b.id"

	t.Run("json", func(t *testing.T) {
		p := testutil.SetupTestProject(t)
		res := p.Run(t, "", "explain", "-o", "json", sql)
		require.NoError(t, res.Err, res.Stderr)

		var got struct {
			Plan   planJSON `json:"plan"`
			Levels [][]int  `json:"levels"`
		}
		require.NoError(t, json.Unmarshal([]byte(res.Stdout), &got))
		require.NotEmpty(t, got.Levels)
		assert.ElementsMatch(t, []int{0, 1}, got.Levels[0], "both fetches can run first")
		assert.Equal(t, "JoinStep", got.Plan.Steps[2].Type)
		assert.Equal(t, []int{2}, got.Plan.ResultRefs["0"])
	})

	t.Run("text", func(t *testing.T) {
		p := testutil.SetupTestProject(t)
		res := p.Run(t, "", "explain", "-o", "text", sql)
		require.NoError(t, res.Err, res.Stderr)
		assert.Contains(t, res.Stdout, "Execution levels")
		assert.Contains(t, res.Stdout, "Result references")
		assert.Contains(t, res.Stdout, "0 -> 2")
	})
}

func TestCatalogCommands(t *testing.T) {
	p := testutil.SetupTestProject(t)

	res := p.Run(t, "", "catalog", "add-integration", "warehouse")
	require.NoError(t, res.Err, res.Stderr)
	assert.Contains(t, res.Stdout, "Added data integration warehouse")

	res = p.Run(t, "", "catalog", "add-integration", "hub", "--kind", "API")
	require.NoError(t, res.Err, res.Stderr)

	res = p.Run(t, "", "catalog", "add-predictor", "ml.sales",
		"--timeseries", "--order-by", "day", "--group-by", "store,region", "--window", "7")
	require.NoError(t, res.Err, res.Stderr)
	assert.Contains(t, res.Stdout, "Added predictor ml.sales")

	res = p.Run(t, "", "catalog", "list", "-o", "yaml")
	require.NoError(t, res.Err, res.Stderr)

	var spec struct {
		Integrations []struct {
			Name string `yaml:"name"`
			Kind string `yaml:"kind"`
		} `yaml:"integrations"`
		Predictors []struct {
			Name        string   `yaml:"name"`
			Integration string   `yaml:"integration"`
			GroupBy     []string `yaml:"group_by"`
			Window      int      `yaml:"window"`
		} `yaml:"predictors"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(res.Stdout), &spec))

	kinds := map[string]string{}
	for _, in := range spec.Integrations {
		kinds[in.Name] = in.Kind
	}
	assert.Equal(t, "data", kinds["int1"], "config entries are listed")
	assert.Equal(t, "data", kinds["warehouse"])
	assert.Equal(t, "api", kinds["hub"])
	assert.Equal(t, "project", kinds["ml"])

	var found bool
	for _, pr := range spec.Predictors {
		if pr.Integration == "ml" && pr.Name == "sales" {
			found = true
			assert.Equal(t, []string{"store", "region"}, pr.GroupBy)
			assert.Equal(t, 7, pr.Window)
		}
	}
	assert.True(t, found, "persisted predictor is listed: %s", res.Stdout)

	// persisted entries are visible to the planner
	res = p.Run(t, "", "plan", "-o", "json", "SELECT * FROM warehouse.t")
	require.NoError(t, res.Err, res.Stderr)
	assert.Equal(t, "warehouse", decodePlan(t, res.Stdout).Steps[0].Integration)

	res = p.Run(t, "", "catalog", "remove", "warehouse")
	require.NoError(t, res.Err, res.Stderr)
	res = p.Run(t, "", "catalog", "list", "-o", "table")
	require.NoError(t, res.Err, res.Stderr)
	assert.NotContains(t, res.Stdout, "warehouse")

	res = p.Run(t, "", "catalog", "remove", "warehouse")
	assert.ErrorContains(t, res.Err, "no persisted integration or predictor named warehouse")
}

func TestCatalogCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "bad kind", args: []string{"catalog", "add-integration", "q", "--kind", "queue"}, want: "invalid integration kind"},
		{name: "dotted integration", args: []string{"catalog", "add-integration", "a.b"}, want: "must not contain dots"},
		{name: "timeseries without order", args: []string{"catalog", "add-predictor", "ts", "--timeseries", "--window", "3"}, want: "order_by column is required"},
		{name: "predictor in data integration", args: []string{"catalog", "add-predictor", "int1.p"}, want: "not a project"},
		{name: "missing import file", args: []string{"catalog", "import", "does-not-exist.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.SetupTestProject(t)
			res := p.Run(t, "", tt.args...)
			require.Error(t, res.Err)
			if tt.want != "" {
				assert.Contains(t, res.Err.Error(), tt.want)
			}
		})
	}
}

func TestCatalogImport(t *testing.T) {
	p := testutil.SetupTestProject(t)
	path := filepath.Join(p.Dir, "import.yaml")
	content := "integrations:\n  - name: files\n  - name: web\n    kind: api\npredictors:\n  - name: churn\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	res := p.Run(t, "", "catalog", "import", path)
	require.NoError(t, res.Err, res.Stderr)
	assert.Contains(t, res.Stdout, "Imported 3 entries")

	res = p.Run(t, "", "catalog", "list", "-o", "table")
	require.NoError(t, res.Err, res.Stderr)
	assert.Contains(t, res.Stdout, "files")
	assert.Contains(t, res.Stdout, "mindsdb.churn")
}

func TestHistoryCommand(t *testing.T) {
	p := testutil.SetupTestProject(t)

	require.NoError(t, p.Run(t, "", "plan", "SELECT * FROM int1.first").Err)
	require.Error(t, p.Run(t, "", "plan", "SELECT * FROM a.b.c.d.second").Err)
	require.NoError(t, p.Run(t, "", "--history=false", "plan", "SELECT * FROM int1.skipped").Err)

	res := p.Run(t, "", "history", "-o", "json")
	require.NoError(t, res.Err, res.Stderr)

	var entries []struct {
		Statement string `json:"statement"`
		Steps     int    `json:"steps"`
		Error     string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Stdout), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "SELECT * FROM a.b.c.d.second", entries[0].Statement, "newest first")
	assert.NotEmpty(t, entries[0].Error)
	assert.Equal(t, "SELECT * FROM int1.first", entries[1].Statement)
	assert.Equal(t, 1, entries[1].Steps)

	res = p.Run(t, "", "history", "--limit", "1", "-o", "table")
	require.NoError(t, res.Err, res.Stderr)
	assert.Contains(t, res.Stdout, "a.b.c.d.second")
	assert.NotContains(t, res.Stdout, "int1.first")
}

func TestHistoryCommandEmpty(t *testing.T) {
	p := testutil.SetupTestProject(t)
	res := p.Run(t, "", "history", "-o", "text")
	require.NoError(t, res.Err, res.Stderr)
	assert.Contains(t, res.Stdout, "No planned statements recorded")

	res = p.Run(t, "", "history", "-o", "json")
	require.NoError(t, res.Err)
	assert.JSONEq(t, "[]", res.Stdout)
}

func TestVersionCommand(t *testing.T) {
	p := testutil.SetupTestProject(t)
	res := p.Run(t, "", "version")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "fedplan v")

	res = p.Run(t, "", "version", "-o", "json")
	require.NoError(t, res.Err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.Stdout), &info))
	assert.NotEmpty(t, info["version"])
	assert.Contains(t, info["go"], "go")
}

func TestInvalidConfig(t *testing.T) {
	p := testutil.SetupTestProjectWithConfig(t, "output: html\n")
	res := p.Run(t, "", "plan", "SELECT 1")
	assert.ErrorContains(t, res.Err, "invalid output format")
}
