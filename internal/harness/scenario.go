package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/txgraph/internal/ir"
)

// Scenario is one scripted run of a transaction tree.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is a CUE file or directory, relative to the scenario file.
	Schema string `yaml:"schema,omitempty"`

	// SchemaSource is inline CUE. Exactly one of Schema and SchemaSource
	// must be set.
	SchemaSource string `yaml:"schema_source,omitempty"`

	// Seed records are written to storage before the first step.
	Seed []SeedRecord `yaml:"seed,omitempty"`

	// Steps run in order against the current transaction.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and records.
	Assertions []Assertion `yaml:"assertions"`

	// Structural also records registration and state events in the trace.
	Structural bool `yaml:"structural,omitempty"`
}

// SeedRecord is a stored record in text form.
type SeedRecord struct {
	ID         string              `yaml:"id"`
	Properties map[string]any      `yaml:"properties,omitempty"`
	Refs       map[string]string   `yaml:"refs,omitempty"`
	Lists      map[string][]string `yaml:"lists,omitempty"`
}

// Step operation names.
const (
	OpNew      = "new"
	OpGet      = "get"
	OpSet      = "set"
	OpLink     = "link"
	OpAdd      = "add"
	OpRemove   = "remove"
	OpReplace  = "replace"
	OpDelete   = "delete"
	OpCommit   = "commit"
	OpRollback = "rollback"
	OpSub      = "sub"
	OpDiscard  = "discard"
)

// Step is one operation on the current transaction.
type Step struct {
	// Op is one of the Op constants.
	Op string `yaml:"op"`

	// ID is the record for new, get, set and delete, as "Class/Key".
	ID string `yaml:"id,omitempty"`

	// Class creates a record with a generated key when ID is empty (new).
	Class string `yaml:"class,omitempty"`

	// Property and Value are used by set.
	Property string `yaml:"property,omitempty"`
	Value    any    `yaml:"value,omitempty"`

	// Properties are assigned right after new.
	Properties map[string]any `yaml:"properties,omitempty"`

	// EndPoint is "Class/Key.relation" for link, add, remove and replace.
	EndPoint string `yaml:"endpoint,omitempty"`

	// Target is the related record for link, add and remove. "null"
	// clears a single end-point.
	Target string `yaml:"target,omitempty"`

	// Targets is the new member list for replace.
	Targets []string `yaml:"targets,omitempty"`

	// Index inserts at a position instead of appending (add).
	Index *int `yaml:"index,omitempty"`

	// ExpectError is the engine error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the trace or final records.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// Event is a trace line fragment (trace_contains).
	Event string `yaml:"event,omitempty"`

	// Events are trace line fragments that must match in order
	// (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Kind is an event kind name and Count its exact number (trace_count).
	Kind  string `yaml:"kind,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// ID is the record checked by final_state.
	ID string `yaml:"id,omitempty"`

	// State is the expected record state in the current transaction.
	State string `yaml:"state,omitempty"`

	// Properties are expected values (subset match).
	Properties map[string]any `yaml:"properties,omitempty"`

	// Related maps relation name to expected related ids, in order.
	Related map[string][]string `yaml:"related,omitempty"`

	// Stored asserts presence (true) or absence (false) in storage.
	Stored *bool `yaml:"stored,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. The schema path is
// resolved relative to the file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the schema path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) && basePath != "" {
		scenario.Schema = filepath.Join(basePath, scenario.Schema)
	}
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML without validating file references.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch {
	case s.Schema == "" && s.SchemaSource == "":
		return fmt.Errorf("schema or schema_source is required")
	case s.Schema != "" && s.SchemaSource != "":
		return fmt.Errorf("schema and schema_source are mutually exclusive")
	case s.Schema != "":
		if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
			return fmt.Errorf("schema not found: %s", s.Schema)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, rec := range s.Seed {
		if _, err := parseID(rec.ID); err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
	}
	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	need := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("steps[%d]: %s is required for %s", index, field, st.Op)
		}
		return nil
	}
	switch st.Op {
	case OpNew:
		if st.ID == "" && st.Class == "" {
			return fmt.Errorf("steps[%d]: id or class is required for new", index)
		}
	case OpGet, OpDelete:
		return need("id", st.ID)
	case OpSet:
		if err := need("id", st.ID); err != nil {
			return err
		}
		return need("property", st.Property)
	case OpLink:
		if err := need("endpoint", st.EndPoint); err != nil {
			return err
		}
		return need("target", st.Target)
	case OpAdd, OpRemove:
		if err := need("endpoint", st.EndPoint); err != nil {
			return err
		}
		if err := need("target", st.Target); err != nil {
			return err
		}
		if st.Index != nil && st.Op == OpRemove {
			return fmt.Errorf("steps[%d]: index is only valid for add", index)
		}
	case OpReplace:
		return need("endpoint", st.EndPoint)
	case OpCommit, OpRollback, OpSub, OpDiscard:
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if _, err := parseID(a.ID); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.State == "" && len(a.Properties) == 0 && len(a.Related) == 0 && a.Stored == nil {
			return fmt.Errorf("assertions[%d]: final_state needs state, properties, related or stored", index)
		}
		if a.State != "" {
			if _, err := ir.ParseState(a.State); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// parseID parses a non-null "Class/Key" id.
func parseID(s string) (ir.EntityID, error) {
	id, err := ir.ParseEntityID(s)
	if err != nil {
		return ir.EntityID{}, err
	}
	if id.IsNull() {
		return ir.EntityID{}, fmt.Errorf("id is required")
	}
	return id, nil
}

// parseEndPoint parses "Class/Key.relation".
func parseEndPoint(s string) (ir.EndPointID, error) {
	dot := strings.LastIndex(s, ".")
	if dot <= 0 || dot == len(s)-1 {
		return ir.EndPointID{}, fmt.Errorf("invalid end-point %q: want Class/Key.relation", s)
	}
	id, err := parseID(s[:dot])
	if err != nil {
		return ir.EndPointID{}, fmt.Errorf("invalid end-point %q: %w", s, err)
	}
	return ir.EndPointID{Entity: id, Relation: s[dot+1:]}, nil
}
