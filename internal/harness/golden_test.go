package harness

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_NewTagCommit(t *testing.T) {
	scenario := inline("new_tag_commit",
		nil,
		[]Step{
			{Op: OpNew, ID: "Tag/t9", Properties: map[string]any{"label": "urgent"}},
			{Op: OpCommit},
		},
		Assertion{Type: AssertTraceCount, Kind: "Committed", Count: 1},
	)

	// Regenerate with:
	//   go test ./internal/harness -run TestRunWithGolden_NewTagCommit -update
	require.NoError(t, RunWithGolden(t, scenario))
}

func TestAssertGolden_NewTagRollback(t *testing.T) {
	scenario := inline("new_tag_rollback",
		nil,
		[]Step{
			{Op: OpNew, ID: "Tag/t9"},
			{Op: OpRollback},
		},
		Assertion{Type: AssertFinalState, ID: "Tag/t9", State: "Invalid"},
	)
	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	AssertGolden(t, "new_tag_rollback", result)
}
