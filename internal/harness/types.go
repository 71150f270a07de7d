package harness

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as declared and every assertion
	// held.
	Pass bool `json:"pass"`

	// Trace holds one rendered line per engine event, sub-transaction
	// events indented by depth.
	Trace []string `json:"trace"`

	// Errors contains step and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State maps each record of the root transaction to its final state.
	State map[string]string `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []string{},
		Errors: []string{},
		State:  make(map[string]string),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
