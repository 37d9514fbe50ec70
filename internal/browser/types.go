package browser

import (
	"context"
	"encoding/json"
	"fmt"
)

// LaunchKey identifies one pooled browser process. Two acquisitions with
// equal keys share the same process.
type LaunchKey struct {
	Executable  string `json:"executable"`
	UserDataDir string `json:"user_data_dir"`
	Headless    bool   `json:"headless"`
	Devtools    bool   `json:"devtools"`
}

// String returns a compact form of the key for logging.
func (k LaunchKey) String() string {
	exe := k.Executable
	if exe == "" {
		exe = "<bundled>"
	}
	return fmt.Sprintf("%s headless=%t devtools=%t profile=%q", exe, k.Headless, k.Devtools, k.UserDataDir)
}

// Launcher starts a browser bound to a remote debugging port.
type Launcher interface {
	Launch(ctx context.Context, key LaunchKey, port int) (Browser, error)
}

// Browser is a live browser process reachable over its debugging port.
type Browser interface {
	NewPage() (Page, error)
	Close() error
}

// connectionChecker is implemented by browsers that can report a lost
// connection; the pool drops such entries on the next Acquire.
type connectionChecker interface {
	IsConnected() bool
}

// Page is one tab of a Browser.
type Page interface {
	SetViewport(width, height int) error

	// Goto navigates and returns the main response status, or 0 when the
	// navigation produced no response (same-document navigation).
	Goto(url string) (int, error)

	// Match reports whether selector resolves to a live element. A selector
	// that simply matches nothing yields (false, nil).
	Match(selector string) (bool, error)

	Click(selector string) error
	Fill(selector, value string) error
	KeyDown(key string) error
	KeyUp(key string) error
	Close() error
}

// Step types understood by the player.
const (
	StepSetViewport = "setViewport"
	StepNavigate    = "navigate"
	StepClick       = "click"
	StepChange      = "change"
	StepKeyDown     = "keyDown"
	StepKeyUp       = "keyUp"
)

// StepScript is a recorded browser interaction.
type StepScript struct {
	Name  string `json:"-"`
	Title string `json:"title"`
	Steps []Step `json:"steps"`
}

// Step is one recorded interaction. Only the fields relevant to Type are set.
type Step struct {
	Type       string     `json:"type"`
	URL        string     `json:"url,omitempty"`
	Width      int        `json:"width,omitempty"`
	Height     int        `json:"height,omitempty"`
	Selectors  []Selector `json:"selectors,omitempty"`
	Value      string     `json:"value,omitempty"`
	ExtraValue string     `json:"extra_value,omitempty"`
	Key        string     `json:"key,omitempty"`
}

// Selector is one candidate. Recordings store either a single selector or
// a chain through frames and shadow roots.
type Selector []string

// UnmarshalJSON accepts "sel" as well as ["outer", "inner"].
func (s *Selector) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = Selector{one}
		return nil
	}
	var chain []string
	if err := json.Unmarshal(data, &chain); err != nil {
		return fmt.Errorf("selector must be a string or an array of strings: %w", err)
	}
	*s = chain
	return nil
}

// ParseStepScript decodes a recorded step script.
func ParseStepScript(name string, data []byte) (*StepScript, error) {
	var script StepScript
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parsing step script %q: %w", name, err)
	}
	script.Name = name
	return &script, nil
}
