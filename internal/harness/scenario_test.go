package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txgraph/internal/testutil"
)

// writeSchema writes the office schema to dir/schemas/office.cue.
func writeSchema(t *testing.T, dir string) string {
	t.Helper()
	schemaDir := filepath.Join(dir, "schemas")
	require.NoError(t, os.MkdirAll(schemaDir, 0o755))
	path := filepath.Join(schemaDir, "office.cue")
	require.NoError(t, os.WriteFile(path, []byte(testutil.OfficeSchema), 0o644))
	return path
}

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeSchema(t, dir)
	path := writeScenario(t, dir, `
name: test_scenario
description: "Test scenario for validation"
schema: schemas/office.cue
seed:
  - id: Person/p1
    properties: {name: Ann}
    refs: {desk: Desk/d1}
    lists: {tags: [Tag/t1, Tag/t2]}
steps:
  - op: add
    endpoint: Person/p1.tags
    target: Tag/t3
    index: 0
  - op: commit
assertions:
  - type: trace_contains
    event: Committed
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, schemaPath, scenario.Schema)
	require.Len(t, scenario.Seed, 1)
	assert.Equal(t, "Desk/d1", scenario.Seed[0].Refs["desk"])
	assert.Equal(t, []string{"Tag/t1", "Tag/t2"}, scenario.Seed[0].Lists["tags"])
	require.Len(t, scenario.Steps, 2)
	require.NotNil(t, scenario.Steps[0].Index)
	assert.Equal(t, 0, *scenario.Steps[0].Index)
	assert.Equal(t, OpCommit, scenario.Steps[1].Op)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir)
	path := writeScenario(t, dir, `
name: typo
description: misspelled field
schema: schemas/office.cue
stepz: []
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_SchemaNotFound(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, `
name: no_schema
description: schema file is missing
schema: schemas/office.cue
steps: [{op: commit}]
assertions: [{type: trace_count, kind: Committed, count: 1}]
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema not found")
}

func TestValidateScenario(t *testing.T) {
	base := func() *Scenario {
		return inline("ok", nil, []Step{{Op: OpCommit}}, Assertion{Type: AssertTraceCount, Kind: "Committed", Count: 1})
	}

	tests := []struct {
		name   string
		mutate func(s *Scenario)
		errMsg string
	}{
		{"valid", func(s *Scenario) {}, ""},
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"missing description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no schema", func(s *Scenario) { s.SchemaSource = "" }, "schema or schema_source is required"},
		{"both schemas", func(s *Scenario) { s.Schema = "x.cue" }, "mutually exclusive"},
		{"no assertions", func(s *Scenario) { s.Assertions = nil }, "assertions list is required"},
		{"bad seed id", func(s *Scenario) { s.Seed = []SeedRecord{{ID: "nokey"}} }, "seed[0]"},
		{"empty op", func(s *Scenario) { s.Steps = []Step{{}} }, "steps[0]: op is required"},
		{"unknown op", func(s *Scenario) { s.Steps = []Step{{Op: "save"}} }, `unknown op "save"`},
		{"new without id or class", func(s *Scenario) { s.Steps = []Step{{Op: OpNew}} }, "id or class is required"},
		{"set without property", func(s *Scenario) { s.Steps = []Step{{Op: OpSet, ID: "Person/p1"}} }, "property is required for set"},
		{"link without target", func(s *Scenario) { s.Steps = []Step{{Op: OpLink, EndPoint: "Person/p1.desk"}} }, "target is required for link"},
		{"remove with index", func(s *Scenario) {
			i := 1
			s.Steps = []Step{{Op: OpRemove, EndPoint: "Person/p1.tags", Target: "Tag/t1", Index: &i}}
		}, "index is only valid for add"},
		{"unknown assertion", func(s *Scenario) { s.Assertions = []Assertion{{Type: "final_table"}} }, "unknown assertion type"},
		{"trace_order without events", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertTraceOrder}} }, "events list is required"},
		{"negative count", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertTraceCount, Kind: "Committed", Count: -1}} }, "count must be non-negative"},
		{"final_state without checks", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertFinalState, ID: "Person/p1"}} }, "final_state needs"},
		{"final_state bad state", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertFinalState, ID: "Person/p1", State: "Dirty"}}
		}, "unknown state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			err := validateScenario(s)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseEndPoint(t *testing.T) {
	ep, err := parseEndPoint("Person/p1.desk")
	require.NoError(t, err)
	assert.Equal(t, "Person", ep.Entity.Class)
	assert.Equal(t, "p1", ep.Entity.Key)
	assert.Equal(t, "desk", ep.Relation)

	for _, bad := range []string{"", "Person/p1", "Person/p1.", ".desk", "null.desk"} {
		_, err := parseEndPoint(bad)
		assert.Error(t, err, bad)
	}
}
