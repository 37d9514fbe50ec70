package browser

import (
	"context"
	"strings"

	"github.com/nerrad567/deskpilot/internal/names"
	"github.com/nerrad567/deskpilot/internal/result"
)

// ScriptSource supplies raw step script text by name.
type ScriptSource interface {
	LoadStepsOrActions(name string) result.Result
}

// Player replays recorded step scripts against pooled browsers.
//
// Thread Safety: Play and PlaySteps are safe for concurrent use; every call
// runs its own session.
type Player struct {
	pool     *Pool
	resolver *names.Resolver
	source   ScriptSource
	launch   LaunchKey
	logger   Logger
}

// NewPlayer creates a player that borrows browsers for launch from pool.
//
// Parameters:
//   - pool: Browser pool to borrow from
//   - resolver: Global name table for selector and value interpolation
//   - source: Script store for PlaySteps (may be nil when only Play is used)
//   - launch: Launch parameters for every run
func NewPlayer(pool *Pool, resolver *names.Resolver, source ScriptSource, launch LaunchKey) *Player {
	return &Player{
		pool:     pool,
		resolver: resolver,
		source:   source,
		launch:   launch,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the player.
func (p *Player) SetLogger(logger Logger) {
	p.logger = logger
}

// session is the per-run state of one Play call.
type session struct {
	browser         Browser
	page            Page
	pendingViewport *Step
	visited         []string
}

// PlaySteps loads the named step script and plays it.
func (p *Player) PlaySteps(ctx context.Context, name string) result.Result {
	if p.source == nil {
		return result.Failure("no script source configured")
	}
	raw := p.source.LoadStepsOrActions(name)
	if !raw.OK {
		return raw.Annotate("loading step script %q", name)
	}
	script, err := ParseStepScript(name, []byte(raw.Message))
	if err != nil {
		p.logger.Warn("step script parse failed", "name", name, "error", err)
		return result.FromError(err)
	}
	return p.Play(ctx, script)
}

// Play runs script step by step on a borrowed browser. The first failing
// step aborts the run. On success the payload is the list of visited URLs.
// The page is always closed and the browser always released.
func (p *Player) Play(ctx context.Context, script *StepScript) result.Result {
	if script == nil {
		return result.Failure("playing steps: nil script")
	}
	acquired := p.pool.Acquire(ctx, p.launch)
	if !acquired.OK {
		return acquired.Annotate("acquiring browser")
	}
	h := acquired.Payload.(*Handle)

	s := &session{browser: h.Browser}
	defer p.finish(s, h)

	p.logger.Info("playing steps", "name", script.Name, "title", script.Title, "steps", len(script.Steps), "browser", h.String())

	for i, step := range script.Steps {
		if err := ctx.Err(); err != nil {
			return result.FromError(err).Annotate("step %d (%s)", i, step.Type)
		}
		res := result.Guard(step.Type, func() result.Result {
			return p.playStep(s, step)
		})
		if !res.OK {
			p.logger.Warn("step failed", "name", script.Name, "index", i, "type", step.Type, "error", res.Message)
			return res.Annotate("step %d (%s)", i, step.Type)
		}
	}

	return result.WithPayload(s.visited)
}

func (p *Player) finish(s *session, h *Handle) {
	if s.page != nil {
		res := result.Guard("close page", func() result.Result {
			return result.FromError(s.page.Close())
		})
		if !res.OK {
			p.logger.Warn("closing page failed", "error", res.Message)
		}
	}
	if res := p.pool.Release(p.launch, h); !res.OK {
		p.logger.Warn("releasing browser failed", "browser", h.String(), "error", res.Message)
	}
}

func (p *Player) playStep(s *session, step Step) result.Result {
	switch step.Type {
	case StepSetViewport:
		if s.page == nil {
			pending := step
			s.pendingViewport = &pending
			return result.Success("")
		}
		return result.FromError(s.page.SetViewport(step.Width, step.Height))

	case StepNavigate:
		return p.navigate(s, step)

	case StepClick:
		if s.page == nil {
			return result.FromError(ErrNoPage)
		}
		sel := p.firstMatch(s.page, step.Selectors)
		if !sel.OK {
			return sel
		}
		return result.FromError(s.page.Click(sel.Message))

	case StepChange:
		if s.page == nil {
			return result.FromError(ErrNoPage)
		}
		sel := p.firstMatch(s.page, step.Selectors)
		if !sel.OK {
			return sel
		}
		value := p.resolveValue(step.Value) + step.ExtraValue
		return result.FromError(s.page.Fill(sel.Message, value))

	case StepKeyDown:
		if s.page == nil {
			return result.FromError(ErrNoPage)
		}
		return result.FromError(s.page.KeyDown(step.Key))

	case StepKeyUp:
		if s.page == nil {
			return result.FromError(ErrNoPage)
		}
		return result.FromError(s.page.KeyUp(step.Key))

	default:
		p.logger.Info("skipping unsupported browser step", "type", step.Type)
		return result.Success("")
	}
}

func (p *Player) navigate(s *session, step Step) result.Result {
	if s.page == nil {
		page, err := s.browser.NewPage()
		if err != nil {
			return result.FromError(err).Annotate("opening page")
		}
		s.page = page
		if v := s.pendingViewport; v != nil {
			s.pendingViewport = nil
			if err := page.SetViewport(v.Width, v.Height); err != nil {
				return result.FromError(err).Annotate("applying viewport")
			}
		}
	}

	url := p.interpolateOrLiteral(step.URL)
	status, err := s.page.Goto(url)
	if err != nil {
		return result.FromError(err)
	}
	if status != 0 && (status < 200 || status > 299) {
		return result.Failure("navigate %s: status %d", url, status)
	}
	s.visited = append(s.visited, url)
	return result.Success("")
}

// firstMatch returns the first candidate that matches a live element.
// Candidates that raise a match error are logged and skipped.
func (p *Player) firstMatch(page Page, candidates []Selector) result.Result {
	for _, chain := range candidates {
		raw := strings.Join(chain, " >> ")
		expanded := make(Selector, len(chain))
		for i, part := range chain {
			expanded[i] = p.interpolateOrLiteral(part)
		}
		sel := TranslateSelector(expanded)

		ok, err := page.Match(sel)
		if err != nil {
			p.logger.Debug("selector match error", "selector", raw, "error", err)
			continue
		}
		if ok {
			return result.Success(sel)
		}
	}
	return result.Failure("%v (%d candidates)", ErrNoSelectorMatch, len(candidates))
}

// resolveValue expands <name> references in a change value. A value without
// references may itself be a name. Anything unresolved is typed literally.
func (p *Player) resolveValue(value string) string {
	if strings.ContainsRune(value, '<') {
		return p.interpolateOrLiteral(value)
	}
	if res := p.resolver.Resolve(value); res.OK {
		return res.Message
	}
	return value
}

func (p *Player) interpolateOrLiteral(s string) string {
	if res := p.resolver.Interpolate(s); res.OK {
		return res.Message
	}
	return s
}
