// ABOUTME: Test doubles for the session package
// ABOUTME: Fake backend, fake ticker, recording navigator and counting cache

package session

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/2389/compliai/internal/client"
	"github.com/2389/compliai/internal/events"
	"github.com/2389/compliai/internal/store"
)

var errUnauthorized = &client.APIError{StatusCode: http.StatusUnauthorized, Detail: "Could not validate credentials"}

// fakeAPI is an in-memory AuthAPI.
type fakeAPI struct {
	mu            sync.Mutex
	loginRes      *client.AuthResult
	loginErr      error
	registerRes   *client.AuthResult
	registerErr   error
	meErr         error
	meBlock       chan struct{} // when non-nil, Me waits for a receive or ctx cancel
	loginCalls    int
	registerCalls int
	meCalls       int

	calls chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: make(chan struct{}, 100)}
}

func (f *fakeAPI) Login(ctx context.Context, creds client.Credentials) (*client.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	return f.loginRes, f.loginErr
}

func (f *fakeAPI) Register(ctx context.Context, reg client.Registration) (*client.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	return f.registerRes, f.registerErr
}

func (f *fakeAPI) Me(ctx context.Context) (*client.User, error) {
	f.mu.Lock()
	f.meCalls++
	block := f.meBlock
	f.mu.Unlock()

	f.calls <- struct{}{}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meErr != nil {
		return nil, f.meErr
	}
	return &client.User{ID: "u1", Email: "ada@example.com"}, nil
}

func (f *fakeAPI) setMeErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meErr = err
}

func (f *fakeAPI) meCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meCalls
}

// waitCall blocks until Me has been entered once more.
func (f *fakeAPI) waitCall(t *testing.T) {
	t.Helper()
	select {
	case <-f.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for validation call")
	}
}

func authResult(token string) *client.AuthResult {
	return &client.AuthResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   3600,
		User: client.User{
			ID:          "u1",
			Email:       "ada@example.com",
			FullName:    "Ada Auditor",
			Role:        "auditor",
			Permissions: []string{PermChatAccess},
		},
	}
}

// fakeTicker is a manually driven Ticker.
type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (f *fakeTicker) Chan() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeTicker) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// tick fires without blocking; like time.Ticker, a slow reader loses ticks.
func (f *fakeTicker) tick() {
	select {
	case f.ch <- time.Now():
	default:
	}
}

type tickerRecorder struct {
	mu        sync.Mutex
	tickers   []*fakeTicker
	intervals []time.Duration
}

func (r *tickerRecorder) factory(interval time.Duration) Ticker {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 1)}
	r.tickers = append(r.tickers, t)
	r.intervals = append(r.intervals, interval)
	return t
}

func (r *tickerRecorder) get(i int) *fakeTicker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tickers[i]
}

func (r *tickerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tickers)
}

// recordingNav captures navigation requests.
type recordingNav struct {
	mu      sync.Mutex
	notices []string
}

func (n *recordingNav) ToSignIn(notice string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNav) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notices...)
}

// countingCache counts reads on top of a MemoryCache.
type countingCache struct {
	*store.MemoryCache
	mu    sync.Mutex
	reads int
}

func (c *countingCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.MemoryCache.Get(ctx, key)
}

func (c *countingCache) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// eventLog records every event on a bus.
type eventLog struct {
	mu    sync.Mutex
	kinds []events.Kind
}

func recordEvents(bus *events.Bus) *eventLog {
	l := &eventLog{}
	bus.Subscribe(func(ev events.Event) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.kinds = append(l.kinds, ev.Kind)
		return nil
	})
	return l
}

func (l *eventLog) all() []events.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.Kind(nil), l.kinds...)
}
