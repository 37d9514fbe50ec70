package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nerrad567/deskpilot/internal/functions"
	"github.com/nerrad567/deskpilot/internal/names"
	"github.com/nerrad567/deskpilot/internal/result"
	"github.com/nerrad567/deskpilot/internal/scripts"
)

// maxErrorBody bounds how much of a failed response is quoted in the result.
const maxErrorBody = 256

// requireStrings returns the named string fields of step, failing on the
// first one that is absent or empty.
func requireStrings(step ActionStep, keys ...string) (map[string]string, result.Result) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok := step.Fields[k].(string)
		if !ok || v == "" {
			return nil, result.FromError(fmt.Errorf("%w: %s", ErrMissingField, k))
		}
		out[k] = v
	}
	return out, result.Success("")
}

// requirePresent fails if any key is absent from the step.
func requirePresent(step ActionStep, keys ...string) result.Result {
	for _, k := range keys {
		if _, ok := step.Fields[k]; !ok {
			return result.FromError(fmt.Errorf("%w: %s", ErrMissingField, k))
		}
	}
	return result.Success("")
}

// ─── http_get ───────────────────────────────────────────────────────────────

func (e *Engine) httpGet(ctx context.Context, _ *Run, step ActionStep) result.Result {
	f, res := requireStrings(step, "name", "url", "target")
	if !res.OK {
		return res
	}
	target := f["target"]
	if filepath.Base(target) != target || target == "." || target == ".." || strings.ContainsAny(target, `/\`) {
		return result.FromError(fmt.Errorf("%w: %q", ErrInvalidTarget, target))
	}

	scope := e.deps.Resolver.LocalScope(step.Fields)
	defer scope.Close()

	req, res := e.buildRequest(ctx, scope, f["url"])
	if !res.OK {
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.HTTPTimeout)
	defer cancel()

	e.logger.Debug("http_get", "name", f["name"], "host", req.URL.Host, "target", target)
	resp, err := e.deps.HTTP.Do(req.WithContext(ctx))
	if err != nil {
		return result.FromError(fmt.Errorf("get %s: %w", f["name"], err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := fmt.Sprintf("get %s: status %d", f["name"], resp.StatusCode)
		if s := strings.TrimSpace(string(snippet)); s != "" {
			msg += ": " + s
		}
		return result.Failure("%s", msg)
	}

	path := e.targetPath(target)
	if err := writeFileAtomic(path, resp.Body); err != nil {
		return result.FromError(fmt.Errorf("saving %s: %w", f["name"], err))
	}
	return result.Success(path)
}

// buildRequest interpolates rawURL and applies any template registered for
// its host. Every template reference must resolve.
func (e *Engine) buildRequest(ctx context.Context, scope *names.Scope, rawURL string) (*http.Request, result.Result) {
	interpolated := scope.Interpolate(rawURL)
	if !interpolated.OK {
		return nil, interpolated.Annotate("url")
	}
	u, err := url.Parse(interpolated.Message)
	if err != nil {
		return nil, result.FromError(fmt.Errorf("parsing url: %w", err))
	}

	headers := http.Header{}
	if tmpl, ok := e.cfg.Templates[u.Host]; ok {
		if tmpl.URL != nil {
			s, res := tmpl.URL.render(scope, u.String())
			if !res.OK {
				return nil, res.Annotate("url template for %s", u.Host)
			}
			if u, err = url.Parse(s); err != nil {
				return nil, result.FromError(fmt.Errorf("parsing templated url: %w", err))
			}
		}
		for _, name := range sortedKeys(tmpl.Headers) {
			t := tmpl.Headers[name]
			s, res := t.render(scope)
			if !res.OK {
				return nil, res.Annotate("header %s template for %s", name, u.Host)
			}
			headers.Set(name, s)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, result.FromError(fmt.Errorf("building request: %w", err))
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	return req, result.Success("")
}

// render resolves every ref and formats them after any leading args.
func (t Template) render(scope *names.Scope, leading ...any) (string, result.Result) {
	args := make([]any, 0, len(leading)+len(t.Refs))
	args = append(args, leading...)
	for _, ref := range t.Refs {
		res := scope.Resolve(ref)
		if !res.OK {
			return "", res
		}
		args = append(args, res.Message)
	}
	return fmt.Sprintf(t.Format, args...), result.Success("")
}

// targetPath places target under a subdirectory named after its extension.
func (e *Engine) targetPath(target string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(target), "."))
	if ext == "" {
		ext = "data"
	}
	return filepath.Join(e.cfg.DataDir, ext, target)
}

// writeFileAtomic writes r to path via a temporary file in the same directory.
func writeFileAtomic(path string, r io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ─── python_batch / python_action ───────────────────────────────────────────

func (e *Engine) pythonBatch(ctx context.Context, _ *Run, step ActionStep) result.Result {
	if e.deps.Functions == nil {
		return result.FromError(fmt.Errorf("%w: function runtime", ErrUnavailable))
	}
	f, res := requireStrings(step, "name", "path")
	if !res.OK {
		return res
	}
	if res := requirePresent(step, "args", "env"); !res.OK {
		return res
	}

	scope := e.deps.Resolver.LocalScope(step.Fields)
	defer scope.Close()

	path := scope.Interpolate(f["path"])
	if !path.OK {
		return path.Annotate("path")
	}
	args, err := stringList(step.Fields["args"])
	if err != nil {
		return result.FromError(fmt.Errorf("args: %w", err))
	}
	for i, a := range args {
		res := scope.Interpolate(a)
		if !res.OK {
			return res.Annotate("args[%d]", i)
		}
		args[i] = res.Message
	}
	env, err := stringMap(step.Fields["env"])
	if err != nil {
		return result.FromError(fmt.Errorf("env: %w", err))
	}
	for k, v := range env {
		res := scope.Interpolate(v)
		if !res.OK {
			return res.Annotate("env %s", k)
		}
		env[k] = res.Message
	}

	e.logger.Debug("python_batch", "name", f["name"], "path", path.Message)
	return e.deps.Functions.RunBatchScript(ctx, path.Message, functions.BatchOptions{Args: args, Env: env}).
		Annotate("batch %s", f["name"])
}

func (e *Engine) pythonAction(ctx context.Context, _ *Run, step ActionStep) result.Result {
	if e.deps.Functions == nil {
		return result.FromError(fmt.Errorf("%w: function runtime", ErrUnavailable))
	}
	f, res := requireStrings(step, "function")
	if !res.OK {
		return res
	}

	args := make(map[string]string, len(step.Fields))
	for k, v := range step.Fields {
		switch k {
		case fieldType, fieldFailOK, "function":
			continue
		}
		args[k] = argString(v)
	}

	return e.deps.Functions.RunActionFunction(ctx, f["function"], args, e.deps.Cache).
		Annotate("function %s", f["function"])
}

// ─── app / actions / steps ──────────────────────────────────────────────────

func (e *Engine) app(_ context.Context, _ *Run, step ActionStep) result.Result {
	if e.deps.Apps == nil {
		return result.FromError(fmt.Errorf("%w: app launcher", ErrUnavailable))
	}
	f, res := requireStrings(step, "name")
	if !res.OK {
		return res
	}

	loaded := e.deps.Apps.LoadAppLaunch(f["name"])
	if !loaded.OK {
		return loaded
	}
	app, ok := loaded.Payload.(scripts.App)
	if !ok {
		return result.Failure("app %q: unexpected descriptor %T", f["name"], loaded.Payload)
	}
	return e.deps.Apps.StartApp(app)
}

func (e *Engine) actions(ctx context.Context, r *Run, step ActionStep) result.Result {
	f, res := requireStrings(step, "name")
	if !res.OK {
		return res
	}
	return e.playNested(ctx, r, f["name"])
}

func (e *Engine) steps(ctx context.Context, _ *Run, step ActionStep) result.Result {
	f, res := requireStrings(step, "name")
	if !res.OK {
		return res
	}
	return e.PlaySteps(ctx, f["name"])
}

// ─── field conversion ───────────────────────────────────────────────────────

// argString renders a decoded JSON value as a function argument.
func argString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

// stringList accepts a JSON array of scalars or a whitespace separated string.
func stringList(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.Fields(val), nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			switch item.(type) {
			case map[string]any, []any:
				return nil, fmt.Errorf("element %v is not a scalar", item)
			}
			out = append(out, argString(item))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected array, got %T", v)
	}
}

// stringMap accepts a JSON object of scalars.
func stringMap(v any) (map[string]string, error) {
	switch val := v.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]any:
		out := make(map[string]string, len(val))
		for k, item := range val {
			switch item.(type) {
			case map[string]any, []any:
				return nil, fmt.Errorf("value of %s is not a scalar", k)
			}
			out[k] = argString(item)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected object, got %T", v)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
