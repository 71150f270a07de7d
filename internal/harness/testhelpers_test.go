package harness

import "github.com/roach88/txgraph/internal/testutil"

// inline wraps steps and assertions in a scenario over the office schema.
func inline(name string, seed []SeedRecord, steps []Step, assertions ...Assertion) *Scenario {
	return &Scenario{
		Name:         name,
		Description:  "inline " + name,
		SchemaSource: testutil.OfficeSchema,
		Seed:         seed,
		Steps:        steps,
		Assertions:   assertions,
	}
}

func ann() SeedRecord {
	return SeedRecord{ID: "Person/p1", Properties: map[string]any{"name": "Ann"}}
}

func boolPtr(b bool) *bool { return &b }
