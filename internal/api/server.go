package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/deskpilot/internal/browser"
	"github.com/nerrad567/deskpilot/internal/infrastructure/config"
	"github.com/nerrad567/deskpilot/internal/infrastructure/logging"
	"github.com/nerrad567/deskpilot/internal/infrastructure/mqtt"
	"github.com/nerrad567/deskpilot/internal/result"
	"github.com/nerrad567/deskpilot/internal/resultcache"
)

const shutdownGrace = 10 * time.Second

// Runner plays scripts on behalf of HTTP callers.
type Runner interface {
	PlayActions(ctx context.Context, name string) result.Result
	PlaySteps(ctx context.Context, name string) result.Result
}

// CacheReader is the read side of the result cache.
type CacheReader interface {
	GetCacheEntry(group, key string) *resultcache.Entry
	Keys() map[string][]string
	SerializeAndResetChanged(reset bool) string
}

// BrowserPool reports the live browser processes.
type BrowserPool interface {
	Stats() []browser.HandleStats
	Reuse() bool
}

// ScriptLister names the scripts that can be played.
type ScriptLister interface {
	List() ([]string, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Runner   Runner
	Cache    CacheReader
	Browsers BrowserPool  // optional
	Scripts  ScriptLister // optional
	MQTT     *mqtt.Client // optional, reported in metrics

	// ExternalHub is the hub the notifier already broadcasts through.
	// Without one, Start creates a private hub.
	ExternalHub *Hub
	Version     string
}

// Server serves the DeskPilot REST API and event stream.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	runner   Runner
	cache    CacheReader
	browsers BrowserPool
	scripts  ScriptLister
	mqtt     *mqtt.Client
	hub      *Hub
	version  string
	started  time.Time

	server *http.Server

	// runCtx outlives requests: a caller hanging up does not abort a run.
	runCtx context.Context
	cancel context.CancelFunc
}

// New validates deps and returns an unstarted server.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.Runner == nil:
		return nil, errors.New("runner is required")
	case deps.Cache == nil:
		return nil, errors.New("result cache is required")
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		runner:   deps.Runner,
		cache:    deps.Cache,
		browsers: deps.Browsers,
		scripts:  deps.Scripts,
		mqtt:     deps.MQTT,
		hub:      deps.ExternalHub,
		version:  deps.Version,
		started:  time.Now(),
		runCtx:   context.Background(),
	}, nil
}

// Start binds the listen address and serves in the background. A bind
// failure is returned here. Runs started over HTTP are cancelled when ctx
// is done or Close is called.
func (s *Server) Start(ctx context.Context) error {
	s.runCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(s.runCtx)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	read := config.Seconds(s.cfg.Timeouts.Read)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.buildRouter(),
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      config.Seconds(s.cfg.Timeouts.Write),
		IdleTimeout:       config.Seconds(s.cfg.Timeouts.Idle),
	}

	tls := s.cfg.TLS
	s.logger.Info("API server listening", "address", addr, "tls", tls.Enabled)
	go func() {
		var err error
		if tls.Enabled {
			err = s.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped", "error", err)
		}
	}()
	return nil
}

// Hub returns the event hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close cancels HTTP-started runs and shuts the listener down, giving
// in-flight requests up to ten seconds.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck fails until Start has succeeded.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
