// Package automation provides the action script interpreter for DeskPilot.
//
// An action script is a named, ordered list of heterogeneous steps. Each
// step carries a type tag, an optional fail_ok flag, and type-specific
// fields:
//
//	{"actions": [
//	  {"type": "http_get", "name": "report", "url": "https://x/r?id=<cargo_id>", "target": "report.csv"},
//	  {"type": "python_action", "function": "summarise", "group": "reports", "fail_ok": true},
//	  {"type": "actions", "name": "open-dashboards"}
//	]}
//
// Architecture:
//
//	┌───────────────────────────────────────────────────────┐
//	│                  Engine (engine.go)                   │
//	│  ┌──────────────┐    ┌──────────────────────────┐     │
//	│  │   Registry   │───▶│  Handlers (handlers.go)  │     │
//	│  │(registry.go) │    │  http_get  python_batch  │     │
//	│  └──────────────┘    │  python_action  app      │     │
//	│                      │  actions  steps          │     │
//	│                      └──────────────────────────┘     │
//	│  Run pipeline                                          │
//	│  1. Load and parse the script (re-read every run)     │
//	│  2. For each step: look up handler, skip unknown      │
//	│  3. Run handler; panics become failures               │
//	│  4. On success: push the cache if it changed          │
//	│  5. On failure: continue if fail_ok, else abort       │
//	│  6. Record a run summary                              │
//	└───────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - ActionScript: Named list of ActionSteps
//   - ActionStep: Type tag, fail_ok flag and raw fields
//   - Engine: Interpreter; PlayActions, PlaySteps and Trigger
//   - Registry: Thread-safe map from type tag to StepHandler
//   - RunSummary: Outcome of one top-level run
//
// # Nesting
//
// An actions step plays another named script synchronously inside the
// current run. A script that is already executing in the same run cannot
// be entered again, and nesting is capped by Config.MaxDepth.
//
// # Thread Safety
//
// Runs are independent and may execute concurrently. The engine holds no
// per-run state outside the run itself; the result cache and the browser
// pool synchronise their own access.
package automation
