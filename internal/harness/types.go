package harness

import "github.com/quiverlabs/quiver/journal"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success: every step expectation
	// and assertion held.
	Pass bool `json:"pass"`

	// Trace is the full journal for the run, in emission order. Used
	// by journal assertions and golden comparison.
	Trace []journal.Event `json:"trace"`

	// Errors contains expectation and assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result to accumulate into.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError records a failure message and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}
