package harness

// TraceEvent records what one step did. Fields that do not apply to the
// step's action are left empty.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Action  string `json:"action"`
	Target  string `json:"target,omitempty"`
	Applied bool   `json:"applied"`

	// Progress is the owning molecule's "completed/total" after the step.
	Progress string `json:"progress,omitempty"`

	// Settings is the resolved "quality/format" of a begin_capture step.
	Settings string `json:"settings,omitempty"`

	// Dates lists the days a materialize step created molecules on.
	Dates []string `json:"dates,omitempty"`

	// Count is the number of molecules created or deleted, or the history
	// length after a sync step.
	Count int `json:"count,omitempty"`

	// Events are the edges the step crossed, e.g. "completed",
	// "reopened", "day_completed", or a sync status.
	Events []string `json:"events,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Pass = false
	r.Errors = append(r.Errors, msg)
}

// addEvent appends ev with the next sequence number.
func (r *Result) addEvent(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
