package browser

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/deskpilot/internal/result"
)

// Logger defines the logging interface used by the pool and player.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Default port range for remote debugging ports.
const (
	DefaultStartPort = 9222
	defaultPortSpan  = 100
)

// PoolConfig configures a Pool.
type PoolConfig struct {
	// StartPort is the first debugging port tried.
	StartPort int

	// MaxPort is the last debugging port tried. Zero means StartPort+99.
	MaxPort int

	// Reuse keeps browsers alive after Release. When false a browser is
	// closed once its last borrower releases it.
	Reuse bool
}

// Handle is a pooled browser. The pool owns it; borrowers must hand it back
// through Release.
type Handle struct {
	Key       LaunchKey
	Port      int
	Browser   Browser
	StartedAt time.Time

	refs int // guarded by Pool.mu
}

// HandleStats describes one pool entry.
type HandleStats struct {
	Key       LaunchKey `json:"key"`
	Port      int       `json:"port"`
	Borrowers int       `json:"borrowers"`
	StartedAt time.Time `json:"started_at"`
}

// Pool caches live browser processes by LaunchKey.
//
// The map is guarded by one mutex; launching and closing browsers happen
// outside it.
//
// Thread Safety: all methods are safe for concurrent use.
type Pool struct {
	launcher Launcher
	cfg      PoolConfig
	portFree func(port int) bool
	logger   Logger

	mu       sync.Mutex
	entries  map[LaunchKey]*Handle
	stale    map[*Handle]struct{} // disconnected, still borrowed
	reserved map[int]struct{}     // ports chosen for launches still in flight
	closed   bool
}

// NewPool creates an empty pool.
func NewPool(launcher Launcher, cfg PoolConfig) *Pool {
	if cfg.StartPort == 0 {
		cfg.StartPort = DefaultStartPort
	}
	if cfg.MaxPort < cfg.StartPort {
		cfg.MaxPort = cfg.StartPort + defaultPortSpan - 1
	}
	return &Pool{
		launcher: launcher,
		cfg:      cfg,
		portFree: listenerPortFree,
		logger:   noopLogger{},
		entries:  make(map[LaunchKey]*Handle),
		stale:    make(map[*Handle]struct{}),
		reserved: make(map[int]struct{}),
	}
}

// SetLogger sets the logger for the pool.
func (p *Pool) SetLogger(logger Logger) {
	p.logger = logger
}

// Reuse reports whether released browsers are kept alive.
func (p *Pool) Reuse() bool {
	return p.cfg.Reuse
}

// Acquire returns the pooled browser for key, launching one if needed.
// On success the payload is a *Handle.
func (p *Pool) Acquire(ctx context.Context, key LaunchKey) result.Result {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return result.FromError(ErrPoolClosed)
	}
	var dropped *Handle
	if h, ok := p.entries[key]; ok {
		if alive(h.Browser) {
			h.refs++
			p.mu.Unlock()
			return result.WithPayload(h)
		}
		// The CDP link is gone but the process may not be. Borrowed
		// handles are closed by their last Release.
		delete(p.entries, key)
		if h.refs > 0 {
			p.stale[h] = struct{}{}
		} else {
			dropped = h
		}
		p.logger.Warn("pooled browser disconnected, relaunching", "key", key.String(), "port", h.Port, "borrowers", h.refs)
	}

	port, ok := p.reservePortLocked()
	p.mu.Unlock()
	if dropped != nil {
		p.closeBrowser(dropped.Browser, key, dropped.Port)
	}
	if !ok {
		return result.Failure("%v in %d-%d", ErrNoFreePort, p.cfg.StartPort, p.cfg.MaxPort)
	}

	p.logger.Info("launching browser", "key", key.String(), "port", port)

	var b Browser
	res := result.Guard("launch browser", func() result.Result {
		var err error
		b, err = p.launcher.Launch(ctx, key, port)
		return result.FromError(err)
	})

	p.mu.Lock()
	delete(p.reserved, port)
	if !res.OK {
		p.mu.Unlock()
		return res.Annotate("launching browser on port %d", port)
	}
	if p.closed {
		p.mu.Unlock()
		p.closeBrowser(b, key, port)
		return result.FromError(ErrPoolClosed)
	}
	if existing, ok := p.entries[key]; ok {
		// A concurrent Acquire for the same key won the race.
		existing.refs++
		p.mu.Unlock()
		p.closeBrowser(b, key, port)
		return result.WithPayload(existing)
	}
	h := &Handle{Key: key, Port: port, Browser: b, StartedAt: time.Now(), refs: 1}
	p.entries[key] = h
	p.mu.Unlock()

	return result.WithPayload(h)
}

// Release hands a borrowed browser back. With reuse enabled the entry stays
// cached; otherwise the browser is closed once no borrower holds it. A
// handle dropped as disconnected is always closed by its last Release.
func (p *Pool) Release(key LaunchKey, h *Handle) result.Result {
	if h == nil {
		return result.FromError(ErrNotPooled)
	}

	p.mu.Lock()
	if _, ok := p.stale[h]; ok {
		h.refs--
		if h.refs > 0 {
			p.mu.Unlock()
			return result.Success("")
		}
		delete(p.stale, h)
		p.mu.Unlock()
		return p.closeBrowser(h.Browser, key, h.Port)
	}
	cur, ok := p.entries[key]
	if !ok || cur != h {
		p.mu.Unlock()
		return result.FromError(ErrNotPooled)
	}
	if h.refs > 0 {
		h.refs--
	}
	if p.cfg.Reuse || h.refs > 0 {
		p.mu.Unlock()
		return result.Success("")
	}
	delete(p.entries, key)
	p.mu.Unlock()

	return p.closeBrowser(h.Browser, key, h.Port)
}

// Stats lists the current pool entries.
func (p *Pool) Stats() []HandleStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]HandleStats, 0, len(p.entries))
	for _, h := range p.entries {
		out = append(out, HandleStats{Key: h.Key, Port: h.Port, Borrowers: h.refs, StartedAt: h.StartedAt})
	}
	return out
}

// Close closes every pooled browser, including disconnected ones still
// borrowed. Acquire fails afterwards.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	handles := make([]*Handle, 0, len(p.entries)+len(p.stale))
	for _, h := range p.entries {
		handles = append(handles, h)
	}
	for h := range p.stale {
		handles = append(handles, h)
	}
	p.entries = make(map[LaunchKey]*Handle)
	p.stale = make(map[*Handle]struct{})
	p.mu.Unlock()

	for _, h := range handles {
		p.closeBrowser(h.Browser, h.Key, h.Port)
	}
}

func (p *Pool) closeBrowser(b Browser, key LaunchKey, port int) result.Result {
	res := result.Guard("close browser", func() result.Result {
		return result.FromError(b.Close())
	})
	if !res.OK {
		p.logger.Warn("closing browser failed", "key", key.String(), "port", port, "error", res.Message)
		return res
	}
	p.logger.Info("browser closed", "key", key.String(), "port", port)
	return res
}

// reservePortLocked finds the first free port at or above StartPort that
// the pool neither holds nor has reserved. Caller must hold p.mu.
func (p *Pool) reservePortLocked() (int, bool) {
	held := make(map[int]struct{}, len(p.entries)+len(p.stale))
	for _, h := range p.entries {
		held[h.Port] = struct{}{}
	}
	for h := range p.stale {
		held[h.Port] = struct{}{}
	}
	for port := p.cfg.StartPort; port <= p.cfg.MaxPort; port++ {
		if _, ok := held[port]; ok {
			continue
		}
		if _, ok := p.reserved[port]; ok {
			continue
		}
		if p.portFree(port) {
			p.reserved[port] = struct{}{}
			return port, true
		}
	}
	return 0, false
}

func alive(b Browser) bool {
	if c, ok := b.(connectionChecker); ok {
		return c.IsConnected()
	}
	return true
}

// listenerPortFree reports whether nothing is listening on the loopback port.
func listenerPortFree(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// String implements fmt.Stringer for log output.
func (h *Handle) String() string {
	return fmt.Sprintf("browser:%d", h.Port)
}
