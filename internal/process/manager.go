package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Status is the lifecycle state of a managed child.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusFailed  Status = "failed"
)

const defaultGracefulTimeout = 5 * time.Second

// Config describes a child process.
type Config struct {
	Name   string // log label
	Binary string
	Args   []string

	// Env entries (KEY=value) are appended to the parent environment.
	Env     []string
	WorkDir string

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// OnExit runs once per Start when the child exits, requested or not.
	OnExit func(err error)
}

// Logger is the logging interface used by Manager.
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

// Manager owns one long-lived child, such as a pooled browser.
//
// The child runs in its own process group and is not bound to the context
// given to Start; it lives until Stop or until it exits by itself. Each
// line it writes is logged at debug level.
type Manager struct {
	cfg    Config
	logger Logger

	mu       sync.RWMutex
	proc     *child
	status   Status
	exitErr  error
	stopping bool
}

// child is one started incarnation of the managed process.
type child struct {
	pid     int
	started time.Time
	done    chan struct{}
	stop    func() error
	kill    func() error
}

// NewManager returns a stopped manager for cfg.
func NewManager(cfg Config) *Manager {
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	return &Manager{cfg: cfg, logger: noopLogger{}, status: StatusStopped}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the child. ctx only bounds the launch itself.
func (m *Manager) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusRunning {
		return fmt.Errorf("process %s is already running", m.cfg.Name)
	}

	cmd := command(context.Background(), m.cfg)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe for %s: %w", m.cfg.Name, err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		m.status, m.exitErr = StatusFailed, err
		return fmt.Errorf("starting %s: %w", m.cfg.Name, err)
	}

	c := &child{
		pid:     cmd.Process.Pid,
		started: time.Now(),
		done:    make(chan struct{}),
		stop:    func() error { return terminateGroup(cmd) },
		kill:    func() error { return killGroup(cmd) },
	}
	m.proc, m.status, m.exitErr, m.stopping = c, StatusRunning, nil, false

	go m.logLines(out)
	go func() {
		m.exited(c, cmd.Wait())
	}()

	m.logger.Info("process started", "name", m.cfg.Name, "pid", c.pid, "args", m.cfg.Args)
	return nil
}

func (m *Manager) logLines(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m.logger.Debug("process output", "name", m.cfg.Name, "line", sc.Text())
	}
}

func (m *Manager) exited(c *child, err error) {
	m.mu.Lock()
	requested := m.stopping
	if requested {
		m.status = StatusStopped
	} else {
		m.status, m.exitErr = StatusExited, err
	}
	m.mu.Unlock()

	if requested {
		m.logger.Info("process stopped", "name", m.cfg.Name, "pid", c.pid)
	} else {
		m.logger.Warn("process exited", "name", m.cfg.Name, "pid", c.pid, "error", err)
	}
	close(c.done)

	if m.cfg.OnExit != nil {
		m.cfg.OnExit(err)
	}
}

// Stop signals the process group, waits GracefulTimeout and then kills
// it. Stopping a child that is not running does nothing.
func (m *Manager) Stop() error {
	m.mu.Lock()
	c := m.proc
	if m.status != StatusRunning || c == nil {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	m.mu.Unlock()

	if err := c.stop(); err != nil {
		m.logger.Warn("terminate failed", "name", m.cfg.Name, "error", err)
	}

	timer := time.NewTimer(m.cfg.GracefulTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return nil
	case <-timer.C:
	}

	m.logger.Warn("process ignored terminate, killing", "name", m.cfg.Name, "timeout", m.cfg.GracefulTimeout)
	if err := c.kill(); err != nil {
		return fmt.Errorf("killing %s: %w", m.cfg.Name, err)
	}
	<-c.done
	return nil
}

// Done returns a channel closed when the current child exits. It is nil
// before the first Start.
func (m *Manager) Done() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.proc == nil {
		return nil
	}
	return m.proc.done
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns why the child last exited without being asked to, or
// why it failed to start.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exitErr
}

// PID returns the most recent child's pid, or 0 before the first Start.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.proc == nil {
		return 0
	}
	return m.proc.pid
}

// Uptime is how long the running child has been up; zero otherwise.
func (m *Manager) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusRunning {
		return 0
	}
	return time.Since(m.proc.started)
}
