package automation

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/deskpilot/internal/functions"
	"github.com/nerrad567/deskpilot/internal/names"
	"github.com/nerrad567/deskpilot/internal/result"
	"github.com/nerrad567/deskpilot/internal/scripts"
)

// Default engine limits.
const (
	DefaultHTTPTimeout = 30 * time.Second
	DefaultMaxDepth    = 16
)

// ScriptStore reads raw script text by name.
type ScriptStore interface {
	LoadStepsOrActions(name string) result.Result
}

// ResultCache is the cache the engine hands to action functions and
// pushes to clients whenever it changes.
type ResultCache interface {
	functions.Cache
	HasChanged() bool
	SerializeAndResetChanged(reset bool) string
}

// StepPlayer replays browser step scripts.
type StepPlayer interface {
	PlaySteps(ctx context.Context, name string) result.Result
}

// FunctionRuntime runs batch scripts and named action functions.
type FunctionRuntime interface {
	RunBatchScript(ctx context.Context, path string, opts functions.BatchOptions) result.Result
	RunActionFunction(ctx context.Context, name string, args map[string]string, cache functions.Cache) result.Result
}

// AppLauncher resolves and starts app shortcuts.
type AppLauncher interface {
	LoadAppLaunch(name string) result.Result
	StartApp(app scripts.App) result.Result
}

// Notifier is the notification sink.
type Notifier interface {
	SendNotification(title, body string)
	BroadcastJSON(text string)
}

// RunRecorder receives a summary of every finished top-level run.
type RunRecorder interface {
	RecordRun(summary RunSummary)
}

// Template is a format string filled from an ordered list of resolver names.
type Template struct {
	Format string   `yaml:"format" json:"format"`
	Refs   []string `yaml:"refs" json:"refs"`
}

// HostTemplate rewrites http_get requests addressed to one host.
//
// The URL template receives the interpolated URL as its first argument,
// followed by its resolved refs. Header templates receive only their refs.
type HostTemplate struct {
	URL     *Template           `yaml:"url,omitempty" json:"url,omitempty"`
	Headers map[string]Template `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// Config configures the engine.
type Config struct {
	// DataDir receives http_get downloads under <DataDir>/<ext>/<target>.
	DataDir string

	// HTTPTimeout bounds each http_get request.
	HTTPTimeout time.Duration

	// MaxDepth caps nested actions steps.
	MaxDepth int

	// Templates maps a request host (as in URL.Host) to its templates.
	Templates map[string]HostTemplate
}

// Deps are the engine's collaborators. Any of them except Store, Resolver
// and Cache may be nil; steps that need a missing one fail.
type Deps struct {
	Store     ScriptStore
	Resolver  *names.Resolver
	Cache     ResultCache
	Player    StepPlayer
	Functions FunctionRuntime
	Apps      AppLauncher
	Notifier  Notifier
	Recorder  RunRecorder
	HTTP      *http.Client
}

// Engine interprets action scripts.
//
// Runs are independent: any number may execute concurrently, sharing only
// the result cache and the browser pool, which synchronise themselves.
//
// Thread Safety: all public methods are safe for concurrent use.
type Engine struct {
	cfg      Config
	deps     Deps
	registry *Registry
	logger   Logger
}

// NewEngine creates an engine with the built-in step handlers registered.
func NewEngine(cfg Config, deps Deps) *Engine {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if deps.Resolver == nil {
		deps.Resolver = names.NewResolver()
	}
	if deps.HTTP == nil {
		deps.HTTP = &http.Client{}
	}

	e := &Engine{
		cfg:      cfg,
		deps:     deps,
		registry: NewRegistry(),
		logger:   noopLogger{},
	}
	e.registerBuiltins()
	return e
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// Registry returns the step handler registry. Handlers registered on it
// are dispatched like the built-in step types.
func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) registerBuiltins() {
	e.registry.Register(TypeHTTPGet, HandlerFunc(e.httpGet))
	e.registry.Register(TypePythonBatch, HandlerFunc(e.pythonBatch))
	e.registry.Register(TypePythonAction, HandlerFunc(e.pythonAction))
	e.registry.Register(TypeApp, HandlerFunc(e.app))
	e.registry.Register(TypeActions, HandlerFunc(e.actions))
	e.registry.Register(TypeSteps, HandlerFunc(e.steps))
}

// PlayActions loads the named action script and plays it.
func (e *Engine) PlayActions(ctx context.Context, name string) result.Result {
	r := &Run{id: uuid.NewString()}
	start := time.Now()

	script, res := e.loadActionScript(name)
	if !res.OK {
		e.record(RunSummary{RunID: r.id, Name: name, Message: res.Message, StartedAt: start.UTC()})
		return res
	}
	return e.playTop(ctx, r, script, start)
}

// Play plays an already parsed script as a new top-level run.
func (e *Engine) Play(ctx context.Context, script *ActionScript) result.Result {
	if script == nil {
		return result.FromError(fmt.Errorf("%w: nil script", ErrScriptLoad))
	}
	return e.playTop(ctx, &Run{id: uuid.NewString()}, script, time.Now())
}

// PlaySteps plays the named browser step script.
func (e *Engine) PlaySteps(ctx context.Context, name string) result.Result {
	if e.deps.Player == nil {
		return result.FromError(fmt.Errorf("%w: browser player", ErrUnavailable))
	}
	return e.deps.Player.PlaySteps(ctx, name)
}

// Trigger plays a script on behalf of an interactive source such as a
// button. Failures are also sent to the notifier.
func (e *Engine) Trigger(ctx context.Context, kind TriggerKind, name string) result.Result {
	var res result.Result
	switch kind {
	case TriggerActions:
		res = e.PlayActions(ctx, name)
	case TriggerSteps:
		res = e.PlaySteps(ctx, name)
	default:
		res = result.Failure("unknown trigger kind %q", kind)
	}

	if !res.OK && e.deps.Notifier != nil {
		e.deps.Notifier.SendNotification(fmt.Sprintf("%s failed", name), res.Message)
	}
	return res
}

// LoadAndParseActionScript loads and parses the named script. Failures are
// logged and yield nil.
func (e *Engine) LoadAndParseActionScript(name string) *ActionScript {
	script, res := e.loadActionScript(name)
	if !res.OK {
		e.logger.Error("loading action script failed", "name", name, "error", res.Message)
		return nil
	}
	return script
}

func (e *Engine) loadActionScript(name string) (*ActionScript, result.Result) {
	text := e.deps.Store.LoadStepsOrActions(name)
	if !text.OK {
		return nil, text.Annotate("%s: %q", ErrScriptLoad, name)
	}
	script, err := ParseActionScript(name, []byte(text.Message))
	if err != nil {
		return nil, result.FromError(fmt.Errorf("%w: %w", ErrScriptLoad, err))
	}
	return script, result.Success("")
}

// stepCounts tallies the outcome of each step of one script.
type stepCounts struct {
	succeeded, failed, skipped int
}

func (e *Engine) playTop(ctx context.Context, r *Run, script *ActionScript, start time.Time) result.Result {
	e.logger.Info("playing action script", "name", script.Name, "run_id", r.id, "steps", len(script.Actions))

	r.chain = append(r.chain, script.Name)
	res, counts := e.play(ctx, r, script)

	duration := time.Since(start)
	if res.OK {
		e.logger.Info("action script completed", "name", script.Name, "run_id", r.id, "duration", duration)
	} else {
		e.logger.Warn("action script failed", "name", script.Name, "run_id", r.id, "error", res.Message)
	}

	e.record(RunSummary{
		RunID:     r.id,
		Name:      script.Name,
		OK:        res.OK,
		Message:   res.Message,
		Steps:     len(script.Actions),
		Succeeded: counts.succeeded,
		Failed:    counts.failed,
		Skipped:   counts.skipped,
		StartedAt: start.UTC(),
		Duration:  duration,
	})
	return res
}

// playNested runs the named script as a child of the current run.
func (e *Engine) playNested(ctx context.Context, r *Run, name string) result.Result {
	if slices.Contains(r.chain, name) {
		return result.FromError(fmt.Errorf("%w: %s -> %s", ErrRecursion, strings.Join(r.chain, " -> "), name))
	}
	if len(r.chain) >= e.cfg.MaxDepth {
		return result.FromError(fmt.Errorf("%w: limit %d", ErrMaxDepth, e.cfg.MaxDepth))
	}

	script, res := e.loadActionScript(name)
	if !res.OK {
		return res
	}

	r.chain = append(r.chain, name)
	defer func() { r.chain = r.chain[:len(r.chain)-1] }()

	res, _ = e.play(ctx, r, script)
	return res
}

// play walks the steps of one script in order.
func (e *Engine) play(ctx context.Context, r *Run, script *ActionScript) (result.Result, stepCounts) {
	var counts stepCounts
	for i, step := range script.Actions {
		if err := ctx.Err(); err != nil {
			return result.FromError(err).Annotate("step %d (%s)", i, step.Type), counts
		}

		handler, ok := e.registry.Lookup(step.Type)
		if !ok {
			e.logger.Warn("unknown step type, skipping", "script", script.Name, "step", i, "type", step.Type)
			counts.skipped++
			continue
		}

		res := result.Guard(step.Type, func() result.Result {
			return handler.Handle(ctx, r, step)
		})
		if res.OK {
			counts.succeeded++
			e.pushCacheIfChanged()
			continue
		}

		counts.failed++
		res = res.Annotate("step %d (%s)", i, step.Type)
		if step.FailOK {
			e.logger.Warn("step failed, continuing", "script", script.Name, "run_id", r.id, "error", res.Message)
			continue
		}
		return res, counts
	}
	return result.Success(""), counts
}

func (e *Engine) pushCacheIfChanged() {
	if e.deps.Cache == nil || !e.deps.Cache.HasChanged() {
		return
	}
	text := e.deps.Cache.SerializeAndResetChanged(true)
	if e.deps.Notifier != nil {
		e.deps.Notifier.BroadcastJSON(text)
	}
}

func (e *Engine) record(summary RunSummary) {
	if e.deps.Recorder != nil {
		e.deps.Recorder.RecordRun(summary)
	}
}
