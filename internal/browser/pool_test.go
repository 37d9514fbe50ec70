package browser

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type fakeLauncher struct {
	mu       sync.Mutex
	launches []int // ports
	fail     error
	browsers []*fakeBrowser
	pages    []*fakePage // handed out in order by every browser
}

func (l *fakeLauncher) Launch(_ context.Context, _ LaunchKey, port int) (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches = append(l.launches, port)
	if l.fail != nil {
		return nil, l.fail
	}
	b := &fakeBrowser{port: port, launcher: l, connected: true}
	l.browsers = append(l.browsers, b)
	return b, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

type fakeBrowser struct {
	port      int
	launcher  *fakeLauncher
	mu        sync.Mutex
	closed    int
	connected bool
	pageErr   error
}

func (b *fakeBrowser) NewPage() (Page, error) {
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	b.launcher.mu.Lock()
	defer b.launcher.mu.Unlock()
	if len(b.launcher.pages) == 0 {
		return &fakePage{}, nil
	}
	p := b.launcher.pages[0]
	b.launcher.pages = b.launcher.pages[1:]
	return p, nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

func (b *fakeBrowser) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBrowser) closeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func newTestPool(l *fakeLauncher, reuse bool) *Pool {
	p := NewPool(l, PoolConfig{StartPort: 9300, MaxPort: 9310, Reuse: reuse})
	p.portFree = func(int) bool { return true }
	return p
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestPool_SameKeySharesHandle(t *testing.T) {
	l := &fakeLauncher{}
	p := newTestPool(l, true)
	key := LaunchKey{Executable: "/usr/bin/chromium", Headless: true}

	a := p.Acquire(context.Background(), key)
	b := p.Acquire(context.Background(), LaunchKey{Executable: "/usr/bin/chromium", Headless: true})
	if !a.OK || !b.OK {
		t.Fatalf("Acquire failed: %q / %q", a.Message, b.Message)
	}
	if a.Payload.(*Handle) != b.Payload.(*Handle) {
		t.Error("equal keys returned different handles")
	}
	if l.launchCount() != 1 {
		t.Errorf("launches = %d, want 1", l.launchCount())
	}
}

func TestPool_DifferentKeysDifferentPorts(t *testing.T) {
	l := &fakeLauncher{}
	p := newTestPool(l, true)

	a := p.Acquire(context.Background(), LaunchKey{Headless: true})
	b := p.Acquire(context.Background(), LaunchKey{Headless: false})
	ha, hb := a.Payload.(*Handle), b.Payload.(*Handle)
	if ha == hb {
		t.Fatal("different keys share a handle")
	}
	if ha.Port == hb.Port {
		t.Errorf("both browsers bound to port %d", ha.Port)
	}
	if ha.Port != 9300 || hb.Port != 9301 {
		t.Errorf("ports = %d, %d; want 9300, 9301", ha.Port, hb.Port)
	}
}

func TestPool_SkipsBusyPorts(t *testing.T) {
	l := &fakeLauncher{}
	p := newTestPool(l, true)
	p.portFree = func(port int) bool { return port >= 9303 }

	res := p.Acquire(context.Background(), LaunchKey{})
	if got := res.Payload.(*Handle).Port; got != 9303 {
		t.Errorf("port = %d, want 9303", got)
	}
}

func TestPool_NoFreePort(t *testing.T) {
	l := &fakeLauncher{}
	p := newTestPool(l, true)
	p.portFree = func(int) bool { return false }

	res := p.Acquire(context.Background(), LaunchKey{})
	if res.OK {
		t.Fatal("Acquire succeeded with no free port")
	}
	if l.launchCount() != 0 {
		t.Error("launcher called without a port")
	}
}

func TestPool_LaunchFailureCreatesNoEntry(t *testing.T) {
	l := &fakeLauncher{fail: errors.New("spawn failed")}
	p := newTestPool(l, true)

	res := p.Acquire(context.Background(), LaunchKey{})
	if res.OK {
		t.Fatal("Acquire succeeded despite launch failure")
	}
	if len(p.Stats()) != 0 {
		t.Error("failed launch left a pool entry")
	}

	// The port reserved for the failed launch is free again.
	l.fail = nil
	res = p.Acquire(context.Background(), LaunchKey{})
	if !res.OK || res.Payload.(*Handle).Port != 9300 {
		t.Errorf("retry = %+v", res)
	}
}

func TestPool_ReuseKeepsBrowser(t *testing.T) {
	l := &fakeLauncher{}
	p := newTestPool(l, true)
	key := LaunchKey{}

	h := p.Acquire(context.Background(), key).Payload.(*Handle)
	if res := p.Release(key, h); !res.OK {
		t.Fatalf("Release: %s", res.Message)
	}
	if l.browsers[0].closeCount() != 0 {
		t.Error("reuse policy closed the browser")
	}
	if again := p.Acquire(context.Background(), key).Payload.(*Handle); again != h {
		t.Error("reuse policy did not return the cached handle")
	}
	if l.launchCount() != 1 {
		t.Errorf("launches = %d, want 1", l.launchCount())
	}
}

func TestPool_CloseOnRelease(t *testing.T) {
	l := &fakeLauncher{}
	p := newTestPool(l, false)
	key := LaunchKey{}

	first := p.Acquire(context.Background(), key).Payload.(*Handle)
	second := p.Acquire(context.Background(), key).Payload.(*Handle)

	p.Release(key, first)
	if l.browsers[0].closeCount() != 0 {
		t.Fatal("browser closed while still borrowed")
	}

	p.Release(key, second)
	if l.browsers[0].closeCount() != 1 {
		t.Errorf("close count = %d, want 1", l.browsers[0].closeCount())
	}
	if len(p.Stats()) != 0 {
		t.Error("closed browser still pooled")
	}

	// A released handle is no longer pooled.
	if res := p.Release(key, second); res.OK {
		t.Error("double release succeeded")
	}

	p.Acquire(context.Background(), key)
	if l.launchCount() != 2 {
		t.Errorf("launches = %d, want 2", l.launchCount())
	}
}

func TestPool_ReleaseUnknownHandle(t *testing.T) {
	p := newTestPool(&fakeLauncher{}, false)
	if res := p.Release(LaunchKey{}, &Handle{}); res.OK {
		t.Error("releasing a foreign handle succeeded")
	}
	if res := p.Release(LaunchKey{}, nil); res.OK {
		t.Error("releasing nil succeeded")
	}
}

func TestPool_DisconnectedBrowserRelaunched(t *testing.T) {
	l := &fakeLauncher{}
	p := newTestPool(l, true)
	key := LaunchKey{}

	h := p.Acquire(context.Background(), key).Payload.(*Handle)
	p.Release(key, h)
	l.browsers[0].mu.Lock()
	l.browsers[0].connected = false
	l.browsers[0].mu.Unlock()

	again := p.Acquire(context.Background(), key).Payload.(*Handle)
	if again == h {
		t.Error("disconnected browser was handed out")
	}
	if l.launchCount() != 2 {
		t.Errorf("launches = %d, want 2", l.launchCount())
	}
}

func TestPool_DisconnectedIdleBrowserClosed(t *testing.T) {
	l := &fakeLauncher{}
	p := newTestPool(l, true)
	key := LaunchKey{}

	h := p.Acquire(context.Background(), key).Payload.(*Handle)
	p.Release(key, h)
	l.browsers[0].mu.Lock()
	l.browsers[0].connected = false
	l.browsers[0].mu.Unlock()

	p.Acquire(context.Background(), key)
	if got := l.browsers[0].closeCount(); got != 1 {
		t.Errorf("dropped browser close count = %d, want 1", got)
	}
}

func TestPool_DisconnectedBorrowedBrowserClosedOnRelease(t *testing.T) {
	for _, reuse := range []bool{false, true} {
		t.Run(map[bool]string{false: "close on release", true: "reuse"}[reuse], func(t *testing.T) {
			l := &fakeLauncher{}
			p := newTestPool(l, reuse)
			key := LaunchKey{}

			old := p.Acquire(context.Background(), key).Payload.(*Handle)
			l.browsers[0].mu.Lock()
			l.browsers[0].connected = false
			l.browsers[0].mu.Unlock()

			fresh := p.Acquire(context.Background(), key).Payload.(*Handle)
			if fresh == old {
				t.Fatal("disconnected browser was handed out")
			}
			if fresh.Port == old.Port {
				t.Errorf("relaunch reused port %d still held by the dropped browser", old.Port)
			}
			if l.browsers[0].closeCount() != 0 {
				t.Fatal("borrowed browser closed before its release")
			}

			if res := p.Release(key, old); !res.OK {
				t.Errorf("release of dropped handle: %s", res.Message)
			}
			if got := l.browsers[0].closeCount(); got != 1 {
				t.Errorf("dropped browser close count = %d, want 1", got)
			}
			if res := p.Release(key, old); res.OK {
				t.Error("second release of dropped handle succeeded")
			}

			p.Release(key, fresh)
			want := 1
			if reuse {
				want = 0
			}
			if got := l.browsers[1].closeCount(); got != want {
				t.Errorf("fresh browser close count = %d, want %d", got, want)
			}
		})
	}
}

func TestPool_CloseIncludesDisconnectedBorrowed(t *testing.T) {
	l := &fakeLauncher{}
	p := newTestPool(l, true)
	key := LaunchKey{}

	p.Acquire(context.Background(), key)
	l.browsers[0].mu.Lock()
	l.browsers[0].connected = false
	l.browsers[0].mu.Unlock()
	p.Acquire(context.Background(), key)

	p.Close()
	for _, b := range l.browsers {
		if b.closeCount() != 1 {
			t.Errorf("browser on port %d close count = %d, want 1", b.port, b.closeCount())
		}
	}
}

func TestPool_ConcurrentAcquireLaunchesOnceOrClosesDuplicates(t *testing.T) {
	l := &fakeLauncher{}
	p := newTestPool(l, true)
	key := LaunchKey{Headless: true}

	var wg sync.WaitGroup
	handles := make([]*Handle, 8)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := p.Acquire(context.Background(), key)
			if res.OK {
				handles[i] = res.Payload.(*Handle)
			}
		}(i)
	}
	wg.Wait()

	for i, h := range handles {
		if h == nil || h != handles[0] {
			t.Fatalf("handle %d differs from handle 0", i)
		}
	}

	// Every launched browser except the pooled one was closed.
	pooled := handles[0].Browser
	for _, b := range l.browsers {
		if Browser(b) == pooled {
			continue
		}
		if b.closeCount() != 1 {
			t.Errorf("duplicate browser on port %d not closed", b.port)
		}
	}
	if stats := p.Stats(); len(stats) != 1 || stats[0].Borrowers != 8 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestPool_Close(t *testing.T) {
	l := &fakeLauncher{}
	p := newTestPool(l, true)
	p.Acquire(context.Background(), LaunchKey{Headless: true})
	p.Acquire(context.Background(), LaunchKey{Headless: false})

	p.Close()
	for _, b := range l.browsers {
		if b.closeCount() != 1 {
			t.Errorf("browser on port %d not closed", b.port)
		}
	}
	if res := p.Acquire(context.Background(), LaunchKey{}); res.OK {
		t.Error("Acquire succeeded after Close")
	}
}

func TestPool_LaunchPanicIsContained(t *testing.T) {
	p := NewPool(panicLauncher{}, PoolConfig{StartPort: 9400})
	p.portFree = func(int) bool { return true }

	res := p.Acquire(context.Background(), LaunchKey{})
	if res.OK {
		t.Fatal("Acquire succeeded despite panic")
	}
	if len(p.Stats()) != 0 {
		t.Error("panicking launch left a pool entry")
	}
}

type panicLauncher struct{}

func (panicLauncher) Launch(context.Context, LaunchKey, int) (Browser, error) {
	panic("driver crashed")
}
