package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/nerrad567/deskpilot/internal/process"
)

// PlaywrightConfig configures the Playwright-backed launcher.
type PlaywrightConfig struct {
	// InstallDriver downloads the Playwright driver and Chromium on first use.
	InstallDriver bool

	// ConnectTimeout bounds the wait for the debugging endpoint after spawn.
	ConnectTimeout time.Duration

	// NavigationTimeout bounds each navigate step.
	NavigationTimeout time.Duration

	// SelectorTimeout bounds how long a candidate selector may take to appear.
	SelectorTimeout time.Duration
}

// connectRetryInterval is the pause between CDP connection attempts.
const connectRetryInterval = 200 * time.Millisecond

// PlaywrightLauncher starts a browser process with a remote debugging port
// and attaches to it over CDP.
type PlaywrightLauncher struct {
	cfg    PlaywrightConfig
	logger Logger

	once   sync.Once
	pw     *playwright.Playwright
	runErr error
}

// NewPlaywrightLauncher creates a launcher. The Playwright driver is started
// on the first Launch.
func NewPlaywrightLauncher(cfg PlaywrightConfig) *PlaywrightLauncher {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.SelectorTimeout == 0 {
		cfg.SelectorTimeout = 5 * time.Second
	}
	return &PlaywrightLauncher{cfg: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger for the launcher and the processes it starts.
func (l *PlaywrightLauncher) SetLogger(logger Logger) {
	l.logger = logger
}

func (l *PlaywrightLauncher) driver() (*playwright.Playwright, error) {
	l.once.Do(func() {
		if l.cfg.InstallDriver {
			if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
				l.runErr = fmt.Errorf("installing playwright driver: %w", err)
				return
			}
		}
		l.pw, l.runErr = playwright.Run()
		if l.runErr != nil {
			l.runErr = fmt.Errorf("starting playwright driver: %w", l.runErr)
		}
	})
	return l.pw, l.runErr
}

// Launch implements Launcher.
func (l *PlaywrightLauncher) Launch(ctx context.Context, key LaunchKey, port int) (Browser, error) {
	pw, err := l.driver()
	if err != nil {
		return nil, err
	}

	exe := key.Executable
	if exe == "" {
		exe = pw.Chromium.ExecutablePath()
	}
	profile := key.UserDataDir
	if profile == "" {
		profile = filepath.Join(os.TempDir(), fmt.Sprintf("deskpilot-profile-%d", port))
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--user-data-dir=" + profile,
		"--no-first-run",
		"--no-default-browser-check",
	}
	if key.Headless {
		args = append(args, "--headless=new")
	}
	if key.Devtools {
		args = append(args, "--auto-open-devtools-for-tabs")
	}

	mgr := process.NewManager(process.Config{
		Name:            fmt.Sprintf("browser:%d", port),
		Binary:          exe,
		Args:            args,
		GracefulTimeout: 3 * time.Second,
	})
	mgr.SetLogger(l.logger)
	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}

	b, err := l.connect(ctx, pw, mgr, port)
	if err != nil {
		_ = mgr.Stop()
		return nil, err
	}
	return &pwBrowser{browser: b, proc: mgr, cfg: l.cfg}, nil
}

// connect retries the CDP handshake until the endpoint answers, the process
// exits, or ConnectTimeout elapses.
func (l *PlaywrightLauncher) connect(ctx context.Context, pw *playwright.Playwright, mgr *process.Manager, port int) (playwright.Browser, error) {
	endpoint := fmt.Sprintf("http://127.0.0.1:%d", port)
	deadline := time.Now().Add(l.cfg.ConnectTimeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("connecting to %s: timed out after %s", endpoint, l.cfg.ConnectTimeout)
		}
		b, err := pw.Chromium.ConnectOverCDP(endpoint, playwright.BrowserTypeConnectOverCDPOptions{
			Timeout: playwright.Float(float64(remaining.Milliseconds())),
		})
		if err == nil {
			return b, nil
		}
		l.logger.Debug("cdp endpoint not ready", "endpoint", endpoint, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-mgr.Done():
			return nil, fmt.Errorf("browser exited before %s answered: %v", endpoint, mgr.LastError())
		case <-time.After(connectRetryInterval):
		}
	}
}

// pwBrowser adapts a CDP-attached playwright.Browser to Browser.
type pwBrowser struct {
	browser playwright.Browser
	proc    *process.Manager
	cfg     PlaywrightConfig
}

func (b *pwBrowser) NewPage() (Page, error) {
	var bctx playwright.BrowserContext
	if contexts := b.browser.Contexts(); len(contexts) > 0 {
		bctx = contexts[0]
	} else {
		var err error
		if bctx, err = b.browser.NewContext(); err != nil {
			return nil, fmt.Errorf("creating browser context: %w", err)
		}
	}
	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("creating page: %w", err)
	}
	return &pwPage{page: page, cfg: b.cfg}, nil
}

func (b *pwBrowser) IsConnected() bool {
	return b.browser.IsConnected() && b.proc.IsRunning()
}

// Close disconnects from the browser and stops its process.
func (b *pwBrowser) Close() error {
	closeErr := b.browser.Close()
	stopErr := b.proc.Stop()
	return errors.Join(closeErr, stopErr)
}

// pwPage adapts playwright.Page to Page.
type pwPage struct {
	page playwright.Page
	cfg  PlaywrightConfig
}

func (p *pwPage) SetViewport(width, height int) error {
	return p.page.SetViewportSize(width, height)
}

func (p *pwPage) Goto(url string) (int, error) {
	resp, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(p.cfg.NavigationTimeout.Milliseconds())),
	})
	if err != nil {
		return 0, err
	}
	if resp == nil {
		return 0, nil
	}
	return resp.Status(), nil
}

func (p *pwPage) Match(selector string) (bool, error) {
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(p.cfg.SelectorTimeout.Milliseconds())),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *pwPage) Click(selector string) error {
	return p.page.Locator(selector).First().Click()
}

func (p *pwPage) Fill(selector, value string) error {
	return p.page.Locator(selector).First().Fill(value)
}

func (p *pwPage) KeyDown(key string) error {
	return p.page.Keyboard().Down(key)
}

func (p *pwPage) KeyUp(key string) error {
	return p.page.Keyboard().Up(key)
}

func (p *pwPage) Close() error {
	return p.page.Close()
}
