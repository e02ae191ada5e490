package catalog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/fedplan/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `
default_namespace: files
integrations:
  - name: Files
    kind: data
  - name: crm
    kind: api
predictors:
  - name: mindsdb.churn
  - name: sales_forecast
    timeseries: true
    order_by: day
    group_by: [store]
    window: 10
`

func TestDecode(t *testing.T) {
	c, err := catalog.Decode(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	assert.Equal(t, "files", c.DefaultNamespace)
	assert.Equal(t, []string{"mindsdb", "Files", "crm"}, c.IntegrationNames())
	assert.Equal(t, catalog.KindAPI, c.KindOf("CRM"))
	assert.Equal(t, "Files", c.CanonicalName("FILES"))

	ts, ok := c.Predictor("MindsDB", "Sales_Forecast")
	require.True(t, ok)
	assert.True(t, ts.Timeseries)
	assert.Equal(t, []string{"store"}, ts.GroupBy)
	assert.Equal(t, 10, ts.Window)

	_, ok = c.Predictor("mindsdb", "churn")
	assert.True(t, ok)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "unknown field", doc: "integrations:\n  - name: a\n    flavor: x\n", want: "field flavor not found"},
		{name: "bad kind", doc: "integrations:\n  - name: a\n    kind: queue\n", want: "invalid integration kind"},
		{name: "dotted integration", doc: "integrations:\n  - name: a.b\n", want: "must not contain dots"},
		{name: "time series without window", doc: "predictors:\n  - name: p\n    timeseries: true\n    order_by: t\n", want: "window must be positive"},
		{name: "predictor in data integration", doc: "integrations:\n  - name: db\npredictors:\n  - name: db.p\n", want: "is a data integration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Decode(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEmptyDocument(t *testing.T) {
	c, err := catalog.Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.True(t, c.HasIntegration("mindsdb"))
	assert.Equal(t, catalog.KindProject, c.KindOf("mindsdb"))
}

func TestSpecRoundTrip(t *testing.T) {
	c, err := catalog.Decode(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	again, err := catalog.FromSpec(c.ToSpec())
	require.NoError(t, err)
	assert.Equal(t, c.IntegrationNames(), again.IntegrationNames())
	assert.Equal(t, c.Predictors(), again.Predictors())
}

func TestMergeAndRemove(t *testing.T) {
	base := catalog.New()
	require.NoError(t, base.AddIntegration(catalog.Integration{Name: "db"}))

	overlay := catalog.New()
	require.NoError(t, overlay.AddIntegration(catalog.Integration{Name: "DB", Kind: catalog.KindAPI}))
	require.NoError(t, overlay.AddPredictor(catalog.Predictor{Namespace: "proj", Name: "p"}))

	merged, err := base.Merge(overlay)
	require.NoError(t, err)
	assert.Equal(t, catalog.KindAPI, merged.KindOf("db"), "overlay wins")
	assert.Equal(t, catalog.KindData, base.KindOf("db"), "base is not modified")
	assert.Equal(t, catalog.KindProject, merged.KindOf("proj"))

	assert.True(t, merged.Remove("proj"))
	_, ok := merged.Predictor("proj", "p")
	assert.False(t, ok, "removing a namespace drops its predictors")
	assert.False(t, merged.Remove("proj"))
	assert.True(t, merged.HasIntegration("db"))
}

func TestParseKind(t *testing.T) {
	k, err := catalog.ParseKind(" API ")
	require.NoError(t, err)
	assert.Equal(t, catalog.KindAPI, k)

	k, err = catalog.ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, catalog.KindData, k)

	_, err = catalog.ParseKind("stream")
	assert.ErrorIs(t, err, catalog.ErrInvalidKind)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))

	c, err := catalog.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, c.Predictors(), 2)

	_, err = catalog.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read catalog")
}
