package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runIntoDB runs the new_tag scenario against a fresh database file.
func runIntoDB(t *testing.T) string {
	t.Helper()
	dir := scenarioDir(t, map[string]string{"new_tag.yaml": newTagScenario})
	db := filepath.Join(t.TempDir(), "show.db")
	opts := textOpts()
	opts.DBPath = db
	_, _, err := execute(t, NewRunCommand(opts), filepath.Join(dir, "new_tag.yaml"))
	require.NoError(t, err)
	return db
}

func TestShowRecords(t *testing.T) {
	opts := textOpts()
	opts.DBPath = runIntoDB(t)

	out, _, err := execute(t, NewShowCommand(opts))
	require.NoError(t, err)
	assert.Contains(t, out, "Tag/t9 @1")
	assert.Contains(t, out, `"urgent"`)
	assert.Contains(t, out, "1 record(s); 1 commit(s): 1 insert(s), 0 update(s), 0 delete(s)")
}

func TestShowClassFilter(t *testing.T) {
	opts := textOpts()
	opts.DBPath = runIntoDB(t)

	out, _, err := execute(t, NewShowCommand(opts), "--class", "Person")
	require.NoError(t, err)
	assert.NotContains(t, out, "Tag/t9")
	assert.Contains(t, out, "0 record(s)")
}

func TestShowJSON(t *testing.T) {
	opts := jsonOpts()
	opts.DBPath = runIntoDB(t)

	out, _, err := execute(t, NewShowCommand(opts))
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   ShowResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(1), resp.Data.Stats.Inserts)
	require.Len(t, resp.Data.Records, 1)
	assert.Equal(t, "t9", resp.Data.Records[0].ID.Key)
	assert.Equal(t, int64(1), resp.Data.Records[0].Revision)
}

func TestShowMissingDatabase(t *testing.T) {
	opts := textOpts()
	opts.DBPath = filepath.Join(t.TempDir(), "missing.db")

	out, _, err := execute(t, NewShowCommand(opts))
	require.Error(t, err)
	assert.Contains(t, out, "Error ["+ErrCodeStore+"]")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}
