package harness

import (
	"encoding/json"
	"time"
)

// TraceEvent is one message the engine sent while running a scenario.
type TraceEvent struct {
	Seq     int             `json:"seq"`
	Target  string          `json:"target"` // "plugin" or "inspector"
	To      string          `json:"to"`
	Event   string          `json:"event"`
	Action  string          `json:"action,omitempty"`
	Context string          `json:"context,omitempty"`
	Payload map[string]any  `json:"payload,omitempty"`
	Body    json.RawMessage `json:"body"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace lists the outbound messages in send order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Elapsed is how far the fake clock moved while the flow ran.
	Elapsed time.Duration `json:"elapsed"`

	// Opened lists the URLs passed to the opener, in order.
	Opened []string `json:"opened"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Opened: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a sent message. Seq is assigned from the trace length.
func (r *Result) AddTrace(target, to string, body json.RawMessage) error {
	var head struct {
		Event   string         `json:"event"`
		Action  string         `json:"action"`
		Context string         `json:"context"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return err
	}
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     len(r.Trace) + 1,
		Target:  target,
		To:      to,
		Event:   head.Event,
		Action:  head.Action,
		Context: head.Context,
		Payload: head.Payload,
		Body:    body,
	})
	return nil
}
