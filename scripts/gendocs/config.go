package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/fedplan/internal/cli/config"
)

// generateConfigDocs generates the fedplan.yaml reference.
func generateConfigDocs(outDir string) error {
	log.Printf("Generating config docs to %s", outDir)

	// Create output directory
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := generateConfigurationDoc(outDir); err != nil {
		return fmt.Errorf("failed to generate configuration.md: %w", err)
	}
	log.Printf("  Generated configuration.md")
	return nil
}

// ConfigField represents a configuration field definition.
type ConfigField struct {
	Name        string
	Type        string
	Default     string
	Description string
	Category    string // "settings", "integration", "predictor"
	Env         bool   // settable through the environment
}

// getConfigSchema returns the configuration schema definition.
// This is based on internal/cli/config/types.go Config and pkg/catalog/spec.go.
func getConfigSchema() []ConfigField {
	def := config.Default()
	return []ConfigField{
		{Name: "default_namespace", Type: "string", Default: def.DefaultNamespace, Description: "Integration used for tables without one", Category: "settings", Env: true},
		{Name: "predictor_namespace", Type: "string", Default: def.PredictorNamespace, Description: "Namespace holding predictors named without one", Category: "settings", Env: true},
		{Name: "output", Type: "string", Default: def.OutputFormat, Description: "Output format: " + strings.Join(config.OutputFormats, ", "), Category: "settings", Env: true},
		{Name: "verbose", Type: "bool", Default: "false", Description: "Debug logging on stderr", Category: "settings", Env: true},
		{Name: "state_path", Type: "string", Default: def.StatePath, Description: "SQLite state database, relative to the config file", Category: "settings", Env: true},
		{Name: "history", Type: "bool", Default: "true", Description: "Record planned statements in the state database", Category: "settings", Env: true},
		{Name: "server.addr", Type: "string", Default: def.Server.Addr, Description: "Address of the planning API", Category: "settings", Env: true},

		{Name: "name", Type: "string", Description: "Integration name, matched case-insensitively", Category: "integration"},
		{Name: "kind", Type: "string", Default: "data", Description: "data, api or project", Category: "integration"},

		{Name: "name", Type: "string", Description: "Predictor name, optionally namespace.name", Category: "predictor"},
		{Name: "integration", Type: "string", Default: def.PredictorNamespace, Description: "Namespace holding the predictor", Category: "predictor"},
		{Name: "timeseries", Type: "bool", Default: "false", Description: "Predictor forecasts over ordered history", Category: "predictor"},
		{Name: "order_by", Type: "string", Description: "Time column (required for timeseries)", Category: "predictor"},
		{Name: "group_by", Type: "[]string", Description: "Partition columns", Category: "predictor"},
		{Name: "window", Type: "int", Description: "History rows per prediction (required for timeseries)", Category: "predictor"},
	}
}

// envName returns the environment variable for a config key.
func envName(key string) string {
	return config.EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func fieldRows(category string) [][]string {
	var rows [][]string
	for _, f := range getConfigSchema() {
		if f.Category != category {
			continue
		}
		defVal := f.Default
		if defVal == "" {
			defVal = "-"
		}
		rows = append(rows, []string{InlineCode(f.Name), f.Type, InlineCode(defVal), f.Description})
	}
	return rows
}

// generateConfigurationDoc generates the configuration reference page.
func generateConfigurationDoc(outDir string) error {
	w := NewMarkdownWriter()

	w.Frontmatter("Configuration", "fedplan configuration reference")
	w.GeneratedMarker()

	w.Header(1, "Configuration")
	w.Paragraph("fedplan reads " + InlineCode(config.DefaultConfigName) + " from the working directory or the closest parent directory holding one. " +
		"Pass " + InlineCode("--config") + " to use another file.")

	headers := []string{"Field", "Type", "Default", "Description"}

	w.Header(2, "Settings")
	w.Table(headers, fieldRows("settings"))

	w.Header(2, "Catalog")
	w.Paragraph("The " + InlineCode("catalog") + " section declares the integrations and predictors statements are planned against. " +
		"Entries added with " + InlineCode("fedplan catalog") + " are stored in the state database and win over entries of the same name.")

	w.Header(3, "Integrations")
	w.Table(headers, fieldRows("integration"))

	w.Header(3, "Predictors")
	w.Table(headers, fieldRows("predictor"))

	w.Header(2, "Full Configuration Example")
	w.CodeBlock("yaml", `# fedplan.yaml
default_namespace: warehouse
output: auto
state_path: .fedplan/state.db

server:
  addr: 127.0.0.1:8420

catalog:
  integrations:
    - name: warehouse
    - name: crm
      kind: api
  predictors:
    - name: churn
    - name: sales_forecast
      timeseries: true
      order_by: day
      group_by: [store]
      window: 10`)

	w.Header(2, "Environment Variables")
	w.Paragraph("Settings can be overridden with " + InlineCode(config.EnvPrefix) + " variables, for example " +
		InlineCode(envName("server.addr")+"=0.0.0.0:8420") + ".")

	filename := filepath.Join(outDir, "configuration.md")
	return os.WriteFile(filename, w.Bytes(), 0600)
}
