package automation

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Step type tags.
const (
	TypeHTTPGet      = "http_get"
	TypePythonBatch  = "python_batch"
	TypePythonAction = "python_action"
	TypeApp          = "app"
	TypeActions      = "actions"
	TypeSteps        = "steps"
)

// Reserved step fields.
const (
	fieldType   = "type"
	fieldFailOK = "fail_ok"
)

// ActionScript is a named, ordered list of steps. Scripts are re-read from
// the store on every run.
type ActionScript struct {
	Name    string       `json:"-"`
	Actions []ActionStep `json:"actions"`
}

// ActionStep is one step of an action script.
//
// Fields holds every key of the step object, including type and fail_ok,
// so it can back a local name scope directly.
type ActionStep struct {
	Type   string
	FailOK bool
	Fields map[string]any
}

// UnmarshalJSON decodes a step object of the form
// {"type": "...", "fail_ok": false, ...type-specific fields}.
func (s *ActionStep) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("%w: step is not an object", ErrInvalidStep)
	}

	typ, ok := fields[fieldType].(string)
	if !ok {
		return fmt.Errorf("%w: step has no type", ErrInvalidStep)
	}

	failOK := false
	switch v := fields[fieldFailOK].(type) {
	case nil:
	case bool:
		failOK = v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: fail_ok %q is not a boolean", ErrInvalidStep, v)
		}
		failOK = b
	default:
		return fmt.Errorf("%w: fail_ok must be a boolean", ErrInvalidStep)
	}

	*s = ActionStep{Type: typ, FailOK: failOK, Fields: fields}
	return nil
}

// MarshalJSON encodes the step back into its object form.
func (s ActionStep) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Fields)+2)
	for k, v := range s.Fields {
		out[k] = v
	}
	out[fieldType] = s.Type
	out[fieldFailOK] = s.FailOK
	return json.Marshal(out)
}

// ParseActionScript decodes script text.
func ParseActionScript(name string, data []byte) (*ActionScript, error) {
	var script ActionScript
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parsing action script %q: %w", name, err)
	}
	script.Name = name
	return &script, nil
}

// RunSummary describes one finished top-level run.
type RunSummary struct {
	RunID     string        `json:"run_id"`
	Name      string        `json:"name"`
	OK        bool          `json:"ok"`
	Message   string        `json:"message,omitempty"`
	Steps     int           `json:"steps"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// TriggerKind selects what a trigger plays.
type TriggerKind string

const (
	TriggerActions TriggerKind = "actions"
	TriggerSteps   TriggerKind = "steps"
)

// Run is the state shared by one top-level run and its nested scripts.
// Step handlers receive it; it is not safe to keep after Handle returns.
type Run struct {
	id    string
	chain []string // names of the scripts currently executing, outermost first
}

// ID returns the run ID reported in the run summary.
func (r *Run) ID() string {
	return r.id
}

// Chain returns the names of the scripts executing, outermost first.
func (r *Run) Chain() []string {
	return slices.Clone(r.chain)
}
