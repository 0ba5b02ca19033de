package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
)

// Status is the overall outcome of an operation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Outcome of one handler step.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeWarning Outcome = "warning"
)

// Phase is the handler method a step ran.
type Phase string

const (
	PhaseAdd      Phase = "add"
	PhaseRemove   Phase = "remove"
	PhaseRollback Phase = "rollback"
)

// Step records one handler dispatch.
type Step struct {
	Handler HandlerName `json:"handler"`
	Phase   Phase       `json:"phase"`
	Outcome Outcome     `json:"outcome"`
	Error   string      `json:"error,omitempty"`
}

// Response accumulates the result of one operation. A request is confined
// to one goroutine, so Response does no locking.
type Response struct {
	RequestID string
	Operation Operation
	Status    Status
	Steps     []Step

	err  error
	data map[string]any
}

func newResponse(requestID string, op Operation) *Response {
	return &Response{
		RequestID: requestID,
		Operation: op,
		Status:    StatusPending,
		data:      make(map[string]any),
	}
}

// Err returns the consolidated failure: the first handler failure of an
// add, or the fatal error of any operation.
func (r *Response) Err() error { return r.err }

// Set stores a value under key, overwriting any previous value.
func (r *Response) Set(key string, value any) { r.data[key] = value }

// Get retrieves a value by key.
func (r *Response) Get(key string) (any, bool) {
	v, ok := r.data[key]
	return v, ok
}

// GetString retrieves a string value, returning "" if not found or not a string.
func (r *Response) GetString(key string) string {
	v, ok := r.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetBool retrieves a bool value, returning false if not found or not a bool.
func (r *Response) GetBool(key string) bool {
	v, ok := r.Get(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Snapshot returns a shallow copy of all key-value pairs.
func (r *Response) Snapshot() map[string]any {
	out := make(map[string]any, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out
}

// Visited returns the handlers dispatched in the given phase, in order.
func (r *Response) Visited(phase Phase) []HandlerName {
	var out []HandlerName
	for _, s := range r.Steps {
		if s.Phase == phase {
			out = append(out, s.Handler)
		}
	}
	return out
}

func (r *Response) record(name HandlerName, phase Phase, outcome Outcome, err error) {
	s := Step{Handler: name, Phase: phase, Outcome: outcome}
	if err != nil {
		s.Error = err.Error()
	}
	r.Steps = append(r.Steps, s)
}

func (r *Response) fail(err error) {
	if r.err == nil {
		r.err = err
	}
	r.Status = StatusFailed
}

// report is the JSON form written by WriteJSON.
type report struct {
	RequestID string         `json:"request_id"`
	Operation string         `json:"operation"`
	Status    Status         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Steps     []Step         `json:"steps"`
	Data      map[string]any `json:"data"`
}

// WriteJSON persists the response to a JSON file.
func (r *Response) WriteJSON(path string) error {
	rep := report{
		RequestID: r.RequestID,
		Operation: r.Operation.String(),
		Status:    r.Status,
		Steps:     r.Steps,
		Data:      r.Snapshot(),
	}
	if rep.Steps == nil {
		rep.Steps = []Step{}
	}
	if r.err != nil {
		rep.Error = r.err.Error()
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("response marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("response write: %w", err)
	}
	return nil
}
