// ABOUTME: Test doubles for the conversation package
// ABOUTME: Fake chat backend with call counting and a gate for holding sends in flight

package conversation

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/2389/compliai/internal/client"
	"github.com/2389/compliai/internal/events"
	"github.com/2389/compliai/internal/store"
)

var errUnauthorized = &client.APIError{StatusCode: http.StatusUnauthorized, Detail: "Could not validate credentials"}

type fakeChatAPI struct {
	mu sync.Mutex

	sendResp  *client.ChatResponse
	sendErr   error
	sendGate  chan struct{} // when non-nil, SendMessage waits for it
	sendStart chan struct{} // signalled when SendMessage is entered
	sent      []client.ChatRequest

	list    []client.ConversationSummary
	listErr error
	lists   int

	history    map[string][]client.HistoryEntry
	historyErr error

	deleteErr error
	deleted   []string
}

func newFakeChatAPI() *fakeChatAPI {
	return &fakeChatAPI{
		history:   make(map[string][]client.HistoryEntry),
		sendStart: make(chan struct{}, 10),
	}
}

func (f *fakeChatAPI) SendMessage(ctx context.Context, req client.ChatRequest) (*client.ChatResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	gate := f.sendGate
	f.mu.Unlock()

	f.sendStart <- struct{}{}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	resp := *f.sendResp
	return &resp, nil
}

func (f *fakeChatAPI) ListConversations(ctx context.Context) ([]client.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]client.ConversationSummary(nil), f.list...), nil
}

func (f *fakeChatAPI) GetConversationHistory(ctx context.Context, id string) ([]client.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history[id], nil
}

func (f *fakeChatAPI) DeleteConversation(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeChatAPI) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func strPtr(s string) *string { return &s }

type storeFixture struct {
	api   *fakeChatAPI
	cache *store.MemoryCache
	bus   *events.Bus
	st    *Store
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	f := &storeFixture{
		api:   newFakeChatAPI(),
		cache: store.NewMemoryCache(),
		bus:   events.NewBus(nil),
	}
	f.st = f.newStore(t)
	return f
}

// newStore builds another store over the fixture's cache, as after a restart.
func (f *storeFixture) newStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(f.api, f.cache, f.bus, nil)
	t.Cleanup(s.Close)
	return s
}

// cacheKeys lists the keys present in the chat namespace.
func (f *storeFixture) cacheKeys(t *testing.T) []string {
	t.Helper()
	keys, err := store.Namespace(f.cache, CacheNamespace).Keys(context.Background())
	require.NoError(t, err)
	return keys
}
