package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceScenario(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"new_tag.yaml": newTagScenario})

	out, _, err := execute(t, NewTraceCommand(textOpts()), filepath.Join(dir, "new_tag.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "Timeline for new_tag:")
	assert.Contains(t, out, "   1  NewObjectCreating Tag")
	assert.Contains(t, out, "Stats:")
	assert.Regexp(t, `Committed\s+1`, out)
	assert.NotContains(t, out, "RecordRegistered")
}

func TestTraceStructural(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"new_tag.yaml": newTagScenario})

	out, _, err := execute(t, NewTraceCommand(textOpts()), filepath.Join(dir, "new_tag.yaml"), "--structural")
	require.NoError(t, err)
	assert.Contains(t, out, "RecordRegistered")
}

func TestTraceKindFilterJSON(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"new_tag.yaml": newTagScenario})

	out, _, err := execute(t, NewTraceCommand(jsonOpts()), filepath.Join(dir, "new_tag.yaml"),
		"--kind", "Committing", "--kind", "Committed")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []string{"Committing round=1 [Tag/t9]", "Committed [Tag/t9]"}, resp.Data.Timeline)
	assert.Equal(t, map[string]int{"Committing": 1, "Committed": 1}, resp.Data.Stats)
}

func TestTraceUnknownKind(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"new_tag.yaml": newTagScenario})

	_, _, err := execute(t, NewTraceCommand(textOpts()), filepath.Join(dir, "new_tag.yaml"), "--kind", "Exploded")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid --kind")
}

func TestTraceNoMatchingEvents(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"new_tag.yaml": newTagScenario})

	out, _, err := execute(t, NewTraceCommand(textOpts()), filepath.Join(dir, "new_tag.yaml"), "--kind", "ObjectDeleting")
	require.NoError(t, err)
	assert.Contains(t, out, "No events found for scenario: new_tag")
}

func TestBuildTimeline(t *testing.T) {
	trace := []string{
		"SubTransactionCreated",
		"  PropertyValueChanging Person/p1.name \"Ann\" -> \"Anna\"",
		"  Committed [Person/p1]",
		"Committed [Person/p1]",
	}

	all := buildTimeline("s", trace, nil)
	assert.Len(t, all.Timeline, 4)
	assert.Equal(t, 2, all.Stats["Committed"])

	filtered := buildTimeline("s", trace, []string{"Committed"})
	assert.Equal(t, []string{"  Committed [Person/p1]", "Committed [Person/p1]"}, filtered.Timeline)
}
