package harness

// TraceEvent records one executed scenario step.
type TraceEvent struct {
	Step int    `json:"step"`
	Op   string `json:"op"`
	Soup string `json:"soup,omitempty"`

	// Outcome is "ok" or the error code the step failed with.
	Outcome string `json:"outcome"`

	// IDs are the entry ids the step wrote or read.
	IDs []int64 `json:"ids,omitempty"`

	// Rows is the number of rows a query returned.
	Rows *int `json:"rows,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step met its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
