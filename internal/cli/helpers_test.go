package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txgraph/internal/testutil"
)

// newTagScenario creates Tag/t9, labels it and commits.
const newTagScenario = `name: new_tag
schema: office.cue
steps:
  - op: new
    id: Tag/t9
    properties: {label: urgent}
  - op: commit
assertions:
  - type: final_state
    id: Tag/t9
    state: Unchanged
    stored: true
`

// failingScenario asserts a state the run never reaches.
const failingScenario = `name: wrong_state
schema: office.cue
steps:
  - op: new
    id: Tag/t9
assertions:
  - type: final_state
    id: Tag/t9
    state: Unchanged
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// scenarioDir writes office.cue and the given scenarios (file name to
// YAML) into a fresh directory.
func scenarioDir(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "office.cue", testutil.OfficeSchema)
	for name, content := range scenarios {
		writeFile(t, dir, name, content)
	}
	return dir
}

// execute runs cmd with args and returns stdout and stderr.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func textOpts() *RootOptions {
	return &RootOptions{Format: "text", DBPath: ":memory:"}
}

func jsonOpts() *RootOptions {
	return &RootOptions{Format: "json", DBPath: ":memory:"}
}
