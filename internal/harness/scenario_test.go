package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/soupstore/internal/schema"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalScenario = `
name: minimal
description: "Register one soup"
steps:
  - op: register
    soup: employees
    indexes: [{path: name, type: string}]
assertions:
  - type: has_table
    soup: employees
`

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario(writeScenario(t, minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	require.Len(t, scenario.Steps, 1)
	assert.Equal(t, OpRegister, scenario.Steps[0].Op)
	assert.Equal(t, []schema.IndexSpec{{Path: "name", Type: schema.TypeString}}, scenario.Steps[0].Indexes)
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, AssertHasTable, scenario.Assertions[0].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, minimalScenario+"assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: "x"
steps: [{op: drop_all}]
assertions: [{type: has_table, table: TABLE_1}]
`,
			wantErr: "name is required",
		},
		{
			name: "no steps",
			content: `
name: x
description: "x"
steps: []
assertions: [{type: has_table, table: TABLE_1}]
`,
			wantErr: "steps list is required",
		},
		{
			name: "unknown op",
			content: `
name: x
description: "x"
steps: [{op: explode}]
assertions: [{type: has_table, table: TABLE_1}]
`,
			wantErr: `unknown op "explode"`,
		},
		{
			name: "register without indexes",
			content: `
name: x
description: "x"
steps: [{op: register, soup: s}]
assertions: [{type: has_table, table: TABLE_1}]
`,
			wantErr: "indexes are required for register",
		},
		{
			name: "update without id",
			content: `
name: x
description: "x"
steps: [{op: update, soup: s, doc: {a: 1}}]
assertions: [{type: has_table, table: TABLE_1}]
`,
			wantErr: "exactly one id",
		},
		{
			name: "unknown assertion",
			content: `
name: x
description: "x"
steps: [{op: drop_all}]
assertions: [{type: vibes, soup: s}]
`,
			wantErr: `unknown assertion type "vibes"`,
		},
		{
			name: "assertion without soup",
			content: `
name: x
description: "x"
steps: [{op: drop_all}]
assertions: [{type: columns, columns: [a]}]
`,
			wantErr: "soup is required for columns",
		},
		{
			name: "unknown blob backend",
			content: `
name: x
description: "x"
blobs: {backend: s3}
steps: [{op: drop_all}]
assertions: [{type: has_table, table: TABLE_1}]
`,
			wantErr: `unknown backend "s3"`,
		},
		{
			name: "missing soup file",
			content: `
name: x
description: "x"
soups: [missing.cue]
steps: [{op: drop_all}]
assertions: [{type: has_table, table: TABLE_1}]
`,
			wantErr: "soup file not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_ResolvesSoupPaths(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "cue_soups.yaml"))
	require.NoError(t, err)
	require.Len(t, scenario.Soups, 1)
	assert.Equal(t, filepath.Join("testdata", "soups", "employees.cue"), scenario.Soups[0])
}

func TestLoadScenarios(t *testing.T) {
	scenarios, err := LoadScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"cue_soups", "employees_name_index", "externalization", "lifecycle"}, names)
}
