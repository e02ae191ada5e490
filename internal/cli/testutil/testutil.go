// Package testutil runs fedplan commands against a throwaway project.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/fedplan/internal/cli"
)

// ProjectConfig is a fedplan.yaml with a data integration, an api
// integration and two predictors.
const ProjectConfig = `
default_namespace: int1
catalog:
  integrations:
    - name: int1
    - name: int2
    - name: crm
      kind: api
  predictors:
    - name: pred
    - name: tsp
      timeseries: true
      order_by: day
      group_by: [store]
      window: 3
`

// Project is a temporary project directory.
type Project struct {
	Dir        string
	ConfigPath string
	StatePath  string
}

// SetupTestProject creates a temporary project holding ProjectConfig.
func SetupTestProject(t *testing.T) *Project {
	t.Helper()
	return SetupTestProjectWithConfig(t, ProjectConfig)
}

// SetupTestProjectWithConfig creates a temporary project with the given config file.
func SetupTestProjectWithConfig(t *testing.T, config string) *Project {
	t.Helper()

	dir := t.TempDir()
	p := &Project{
		Dir:        dir,
		ConfigPath: filepath.Join(dir, "fedplan.yaml"),
		StatePath:  filepath.Join(dir, ".fedplan", "state.db"),
	}
	if err := os.WriteFile(p.ConfigPath, []byte(config), 0o600); err != nil {
		t.Fatalf("failed to create fedplan.yaml: %v", err)
	}
	return p
}

// Result is the captured outcome of a command run.
type Result struct {
	Stdout string
	Stderr string
	Err    error
}

// Run executes the root command with the project's config and state, and
// stdin as input.
func (p *Project) Run(t *testing.T, stdin string, args ...string) Result {
	t.Helper()

	cmd := cli.NewRootCmd()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", p.ConfigPath, "--state", p.StatePath}, args...))

	err := cmd.Execute()
	return Result{Stdout: out.String(), Stderr: errOut.String(), Err: err}
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
