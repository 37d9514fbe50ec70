package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/deskpilot/internal/names"
	"github.com/nerrad567/deskpilot/internal/result"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

// fakePage records every call as "op:arg" and matches only the selectors in
// live. Selectors in broken raise a match error.
type fakePage struct {
	mu      sync.Mutex
	calls   []string
	live    map[string]bool
	broken  map[string]bool
	status  int
	gotoErr error
	keyErr  error
	panicOn string
	closed  bool
}

func (p *fakePage) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	if p.panicOn != "" && strings.HasPrefix(call, p.panicOn) {
		panic("driver crashed on " + call)
	}
}

func (p *fakePage) SetViewport(w, h int) error {
	p.record(fmt.Sprintf("viewport:%dx%d", w, h))
	return nil
}

func (p *fakePage) Goto(url string) (int, error) {
	p.record("goto:" + url)
	if p.gotoErr != nil {
		return 0, p.gotoErr
	}
	if p.status == 0 {
		return 200, nil
	}
	return p.status, nil
}

func (p *fakePage) Match(sel string) (bool, error) {
	p.record("match:" + sel)
	if p.broken[sel] {
		return false, errors.New("malformed selector")
	}
	return p.live[sel], nil
}

func (p *fakePage) Click(sel string) error {
	p.record("click:" + sel)
	return nil
}

func (p *fakePage) Fill(sel, value string) error {
	p.record("fill:" + sel + "=" + value)
	return nil
}

func (p *fakePage) KeyDown(key string) error {
	p.record("keydown:" + key)
	return p.keyErr
}

func (p *fakePage) KeyUp(key string) error {
	p.record("keyup:" + key)
	return p.keyErr
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) history() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type mapSource map[string]string

func (m mapSource) LoadStepsOrActions(name string) result.Result {
	if text, ok := m[name]; ok {
		return result.Success(text)
	}
	return result.Failure("script %q not found", name)
}

// ─── Helper ─────────────────────────────────────────────────────────────────

func newTestPlayer(t *testing.T, page *fakePage, reuse bool) (*Player, *fakeLauncher, *Pool) {
	t.Helper()
	l := &fakeLauncher{pages: []*fakePage{page}}
	pool := newTestPool(l, reuse)

	r := names.NewResolver()
	r.AddNameValue("cargo_id", "CARG-21556")
	r.AddNameValue("password", "s3cret")
	r.AddNameValue("host", "intranet.local")

	return NewPlayer(pool, r, nil, LaunchKey{Headless: true}), l, pool
}

func script(steps ...Step) *StepScript {
	return &StepScript{Name: "test", Title: "Test", Steps: steps}
}

func sel(parts ...string) Selector { return Selector(parts) }

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestPlayer_ViewportDeferredUntilNavigate(t *testing.T) {
	page := &fakePage{}
	player, _, _ := newTestPlayer(t, page, true)

	res := player.Play(context.Background(), script(
		Step{Type: StepSetViewport, Width: 1280, Height: 720},
		Step{Type: StepNavigate, URL: "https://<host>/login"},
		Step{Type: StepSetViewport, Width: 800, Height: 600},
	))
	if !res.OK {
		t.Fatalf("Play: %s", res.Message)
	}

	want := []string{"viewport:1280x720", "goto:https://intranet.local/login", "viewport:800x600"}
	if got := page.history(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if visited := res.Payload.([]string); len(visited) != 1 || visited[0] != "https://intranet.local/login" {
		t.Errorf("visited = %v", visited)
	}
}

func TestPlayer_ClickFirstLiveCandidateWins(t *testing.T) {
	page := &fakePage{
		live:   map[string]bool{"#submit": true, `role=button[name="CARG-21556"]`: true},
		broken: map[string]bool{"xpath=//*[": true},
	}
	player, _, _ := newTestPlayer(t, page, true)

	res := player.Play(context.Background(), script(
		Step{Type: StepNavigate, URL: "https://example.com"},
		Step{Type: StepClick, Selectors: []Selector{
			sel("xpath///*["),
			sel(".missing"),
			sel(`aria/<cargo_id>[role="button"]`),
			sel("#submit"),
		}},
	))
	if !res.OK {
		t.Fatalf("Play: %s", res.Message)
	}

	got := page.history()
	last := got[len(got)-1]
	if last != `click:role=button[name="CARG-21556"]` {
		t.Errorf("clicked %q", last)
	}
	for _, c := range got {
		if c == "match:#submit" {
			t.Error("candidates after the first match were tried")
		}
	}
}

func TestPlayer_ChangeResolvesValue(t *testing.T) {
	tests := []struct {
		name  string
		value string
		extra string
		want  string
	}{
		{name: "bare name", value: "password", want: "s3cret"},
		{name: "embedded reference", value: "id-<cargo_id>", want: "id-CARG-21556"},
		{name: "unresolved is literal", value: "plain text", want: "plain text"},
		{name: "unresolved reference is literal", value: "<nope>", want: "<nope>"},
		{name: "extra value appended", value: "password", extra: "\n", want: "s3cret\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &fakePage{live: map[string]bool{"#field": true}}
			player, _, _ := newTestPlayer(t, page, true)

			res := player.Play(context.Background(), script(
				Step{Type: StepNavigate, URL: "https://example.com"},
				Step{Type: StepChange, Selectors: []Selector{sel("#field")}, Value: tt.value, ExtraValue: tt.extra},
			))
			if !res.OK {
				t.Fatalf("Play: %s", res.Message)
			}
			got := page.history()
			if want := "fill:#field=" + tt.want; got[len(got)-1] != want {
				t.Errorf("last call = %q, want %q", got[len(got)-1], want)
			}
		})
	}
}

func TestPlayer_Failures(t *testing.T) {
	tests := []struct {
		name       string
		page       *fakePage
		steps      []Step
		wantPrefix string
	}{
		{
			name:       "click before navigate",
			page:       &fakePage{},
			steps:      []Step{{Type: StepClick, Selectors: []Selector{sel("#a")}}},
			wantPrefix: "step 0 (click): browser: no active page",
		},
		{
			name:       "key before navigate",
			page:       &fakePage{},
			steps:      []Step{{Type: StepKeyDown, Key: "Enter"}},
			wantPrefix: "step 0 (keyDown): browser: no active page",
		},
		{
			name: "no selector matches",
			page: &fakePage{},
			steps: []Step{
				{Type: StepNavigate, URL: "https://example.com"},
				{Type: StepClick, Selectors: []Selector{sel("#a"), sel("#b")}},
			},
			wantPrefix: "step 1 (click): browser: no selector matched",
		},
		{
			name:       "non-2xx navigation",
			page:       &fakePage{status: 404},
			steps:      []Step{{Type: StepNavigate, URL: "https://example.com/missing"}},
			wantPrefix: "step 0 (navigate): navigate https://example.com/missing: status 404",
		},
		{
			name:       "navigation error",
			page:       &fakePage{gotoErr: errors.New("net::ERR_NAME_NOT_RESOLVED")},
			steps:      []Step{{Type: StepNavigate, URL: "https://nowhere"}},
			wantPrefix: "step 0 (navigate): net::ERR_NAME_NOT_RESOLVED",
		},
		{
			name: "keyboard error",
			page: &fakePage{keyErr: errors.New("unknown key")},
			steps: []Step{
				{Type: StepNavigate, URL: "https://example.com"},
				{Type: StepKeyUp, Key: "Bogus"},
			},
			wantPrefix: "step 1 (keyUp): unknown key",
		},
		{
			name: "driver panic",
			page: &fakePage{panicOn: "keydown", live: map[string]bool{}},
			steps: []Step{
				{Type: StepNavigate, URL: "https://example.com"},
				{Type: StepKeyDown, Key: "a"},
			},
			wantPrefix: "step 1 (keyDown): keyDown: panic:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			player, l, pool := newTestPlayer(t, tt.page, false)

			res := player.Play(context.Background(), script(tt.steps...))
			if res.OK {
				t.Fatal("Play succeeded")
			}
			if !strings.HasPrefix(res.Message, tt.wantPrefix) {
				t.Errorf("Message = %q, want prefix %q", res.Message, tt.wantPrefix)
			}

			// The browser is released (and, without reuse, closed) on every path.
			if len(pool.Stats()) != 0 {
				t.Error("browser still pooled after failed run")
			}
			if l.browsers[0].closeCount() != 1 {
				t.Errorf("browser close count = %d, want 1", l.browsers[0].closeCount())
			}
		})
	}
}

func TestPlayer_FailureAbortsRemainingSteps(t *testing.T) {
	page := &fakePage{}
	player, _, _ := newTestPlayer(t, page, true)

	res := player.Play(context.Background(), script(
		Step{Type: StepNavigate, URL: "https://example.com"},
		Step{Type: StepClick, Selectors: []Selector{sel("#missing")}},
		Step{Type: StepNavigate, URL: "https://example.com/after"},
	))
	if res.OK {
		t.Fatal("Play succeeded")
	}
	for _, c := range page.history() {
		if c == "goto:https://example.com/after" {
			t.Error("step after the failure was executed")
		}
	}
	if !page.closed {
		t.Error("page not closed after failure")
	}
}

func TestPlayer_ReleasesBrowserWithReuse(t *testing.T) {
	page := &fakePage{}
	player, l, pool := newTestPlayer(t, page, true)

	res := player.Play(context.Background(), script(Step{Type: StepNavigate, URL: "https://example.com"}))
	if !res.OK {
		t.Fatalf("Play: %s", res.Message)
	}
	stats := pool.Stats()
	if len(stats) != 1 || stats[0].Borrowers != 0 {
		t.Errorf("Stats = %+v, want one idle entry", stats)
	}
	if l.browsers[0].closeCount() != 0 {
		t.Error("reused browser was closed")
	}
	if !page.closed {
		t.Error("page not closed")
	}
}

func TestPlayer_UnknownStepSkipped(t *testing.T) {
	player, _, _ := newTestPlayer(t, &fakePage{}, true)
	res := player.Play(context.Background(), script(Step{Type: "waitForElement"}))
	if !res.OK {
		t.Errorf("unknown step failed the run: %s", res.Message)
	}
}

func TestPlayer_AcquireFailure(t *testing.T) {
	l := &fakeLauncher{fail: errors.New("no chromium")}
	pool := newTestPool(l, false)
	player := NewPlayer(pool, names.NewResolver(), nil, LaunchKey{})

	res := player.Play(context.Background(), script(Step{Type: StepNavigate, URL: "x"}))
	if res.OK || !strings.Contains(res.Message, "no chromium") {
		t.Errorf("Play = %+v", res)
	}
}

func TestPlayer_NilScript(t *testing.T) {
	player, l, _ := newTestPlayer(t, &fakePage{}, false)

	res := player.Play(context.Background(), nil)
	if res.OK || !strings.Contains(res.Message, "nil script") {
		t.Errorf("Play(nil) = %+v", res)
	}
	if l.launchCount() != 0 {
		t.Errorf("launches = %d, want 0", l.launchCount())
	}
}

func TestPlayer_PlaySteps(t *testing.T) {
	page := &fakePage{live: map[string]bool{"text=Sign in": true}}
	player, _, _ := newTestPlayer(t, page, true)
	player.source = mapSource{
		"login": `{"title":"Login","steps":[
			{"type":"navigate","url":"https://example.com"},
			{"type":"click","selectors":[["text/Sign in"]]}
		]}`,
		"broken": `{"steps":[`,
	}

	if res := player.PlaySteps(context.Background(), "login"); !res.OK {
		t.Fatalf("PlaySteps(login): %s", res.Message)
	}
	if res := player.PlaySteps(context.Background(), "broken"); res.OK {
		t.Error("PlaySteps(broken) succeeded")
	}
	if res := player.PlaySteps(context.Background(), "absent"); res.OK {
		t.Error("PlaySteps(absent) succeeded")
	}
}

func TestTranslateSelector(t *testing.T) {
	tests := []struct {
		in   Selector
		want string
	}{
		{sel("#id"), "#id"},
		{sel(`aria/Submit order[role="button"]`), `role=button[name="Submit order"]`},
		{sel("aria/Submit"), "text=Submit"},
		{sel("xpath//html/body/div"), "xpath=/html/body/div"},
		{sel("text/Sign in"), "text=Sign in"},
		{sel("pierce/#host .inner"), "css=#host .inner"},
		{sel("iframe#app", "aria/OK[role=\"button\"]"), `iframe#app >> role=button[name="OK"]`},
	}
	for _, tt := range tests {
		if got := TranslateSelector(tt.in); got != tt.want {
			t.Errorf("TranslateSelector(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseStepScript_SelectorForms(t *testing.T) {
	s, err := ParseStepScript("x", []byte(`{"title":"T","steps":[
		{"type":"click","selectors":["#one",["#outer","#inner"]]}
	]}`))
	if err != nil {
		t.Fatalf("ParseStepScript: %v", err)
	}
	got := s.Steps[0].Selectors
	if len(got) != 2 || len(got[0]) != 1 || len(got[1]) != 2 || got[1][1] != "#inner" {
		t.Errorf("selectors = %v", got)
	}
	if s.Name != "x" || s.Title != "T" {
		t.Errorf("script = %+v", s)
	}
}
