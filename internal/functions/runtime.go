package functions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/nerrad567/deskpilot/internal/process"
	"github.com/nerrad567/deskpilot/internal/result"
	"github.com/nerrad567/deskpilot/internal/resultcache"
)

// Logger defines the logging interface used by the runtime.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Cache is the part of the result cache a function may use.
type Cache interface {
	Insert(group, key string, rows []resultcache.Row, columns []string) result.Result
	InsertKeyed(group, key string, rowMap map[string]resultcache.Row, rowKeyName string, columns []string) result.Result
	GetCacheEntry(group, key string) *resultcache.Entry
}

// Config configures the runtime.
type Config struct {
	// Interpreter runs batch scripts, e.g. "python3".
	Interpreter string

	// Dir holds the *.js files defining action functions.
	Dir string

	// Timeout bounds one batch script or function call.
	Timeout time.Duration
}

// BatchOptions are the per-step settings of a batch script.
type BatchOptions struct {
	Args []string
	Env  map[string]string
}

// Runtime runs batch scripts and named action functions.
//
// Thread Safety: safe for concurrent use. Every function call gets its own
// JavaScript VM.
type Runtime struct {
	cfg    Config
	logger Logger
}

// New creates a runtime.
func New(cfg Config) *Runtime {
	if cfg.Interpreter == "" {
		cfg.Interpreter = "python3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Runtime{cfg: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger for the runtime.
func (r *Runtime) SetLogger(logger Logger) {
	r.logger = logger
}

// RunBatchScript runs path with the configured interpreter and waits for it.
// A non-zero exit fails with the tail of stderr.
func (r *Runtime) RunBatchScript(ctx context.Context, path string, opts BatchOptions) result.Result {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	slices.Sort(env)

	out, err := process.Run(ctx, process.Config{
		Name:    filepath.Base(path),
		Binary:  r.cfg.Interpreter,
		Args:    append([]string{path}, opts.Args...),
		Env:     env,
		WorkDir: filepath.Dir(path),
	})
	r.logger.Debug("batch script finished", "path", path, "exit_code", out.ExitCode, "stdout", tail(out.Stdout))
	if err != nil {
		if msg := tail(out.Stderr); msg != "" {
			return result.Failure("%v: %s", err, msg)
		}
		return result.FromError(err)
	}
	return result.Success(strings.TrimSpace(out.Stdout))
}

// RunActionFunction calls the global function name defined in the runtime's
// script directory as name(args, cache, log). A function that returns
// nothing or an empty string succeeds; any other return value is the
// failure message. Exceptions fail with the exception text.
func (r *Runtime) RunActionFunction(ctx context.Context, name string, args map[string]string, cache Cache) result.Result {
	if err := ctx.Err(); err != nil {
		return result.FromError(err)
	}

	vm := goja.New()

	// Both interrupts stay armed while the function files load, so a file
	// looping at top level is stopped too.
	timer := time.AfterFunc(r.cfg.Timeout, func() { vm.Interrupt(ErrTimeout) })
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	var ret goja.Value
	res := result.Guard("function "+name, func() result.Result {
		if res := r.loadScripts(vm); !res.OK {
			return res
		}
		fn, ok := goja.AssertFunction(vm.Get(name))
		if !ok {
			return result.FromError(fmt.Errorf("%w: %q", ErrFunctionNotFound, name))
		}
		var err error
		ret, err = fn(goja.Undefined(), vm.ToValue(args), newCacheObject(vm, cache), r.logFunc(vm, name))
		return result.FromError(scriptError(err))
	})
	if !res.OK {
		return res
	}

	if ret == nil || goja.IsUndefined(ret) || goja.IsNull(ret) {
		return result.Success("")
	}
	if msg := ret.String(); msg != "" {
		return result.Failure("%s", msg)
	}
	return result.Success("")
}

// loadScripts evaluates every *.js file of the script directory in name order.
func (r *Runtime) loadScripts(vm *goja.Runtime) result.Result {
	if r.cfg.Dir == "" {
		return result.FromError(ErrNoFunctionsDir)
	}
	files, err := filepath.Glob(filepath.Join(r.cfg.Dir, "*.js"))
	if err != nil {
		return result.FromError(fmt.Errorf("listing functions: %w", err))
	}
	slices.Sort(files)
	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			return result.FromError(fmt.Errorf("reading %s: %w", f, err))
		}
		if _, err := vm.RunScript(filepath.Base(f), string(src)); err != nil {
			return result.FromError(fmt.Errorf("loading %s: %w", filepath.Base(f), scriptError(err)))
		}
	}
	return result.Success("")
}

func (r *Runtime) logFunc(vm *goja.Runtime, function string) goja.Value {
	return vm.ToValue(func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		r.logger.Info("function log", "function", function, "message", strings.Join(parts, " "))
		return goja.Undefined()
	})
}

func scriptError(err error) error {
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return fmt.Errorf("function interrupted: %w", cause)
		}
		return fmt.Errorf("function interrupted: %v", interrupted.Value())
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return fmt.Errorf("exception: %s", exception.Value().String())
	}
	return err
}

// tail returns the last few lines of s for messages.
func tail(s string) string {
	const maxLines = 5
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n")
}
