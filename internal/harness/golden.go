package harness

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden runs scenario in memory and checks its trace against
// testdata/golden/<name>.golden. It returns an error only if the scenario
// could not run; a trace mismatch fails t. Regenerate with
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	AssertGolden(t, scenario.Name, result)
	return nil
}

// AssertGolden checks an existing result's trace against the golden file
// for name.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, RenderTrace(result.Trace))
}

// RenderTrace renders a trace as a golden file body, one event per line.
func RenderTrace(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}
