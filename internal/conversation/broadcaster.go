// ABOUTME: In-memory fan-out of conversation state changes to watchers
// ABOUTME: Non-blocking publish; slow watchers drop changes rather than stall the store

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// watcherBufferSize is the channel buffer for each watcher.
const watcherBufferSize = 64

// ChangeKind says which part of the state changed.
type ChangeKind string

const (
	ChangeConversations ChangeKind = "conversations"
	ChangeMessages      ChangeKind = "messages"
	ChangeActive        ChangeKind = "active"
	ChangeCleared       ChangeKind = "cleared"
)

// Change is a notification that store state moved. It carries no state;
// read the store's accessors for the new values.
type Change struct {
	Kind           ChangeKind
	ConversationID string
}

// changeBroadcaster fans Change values out to watchers.
type changeBroadcaster struct {
	mu       sync.RWMutex
	watchers map[string]chan Change // subID -> ch
	closed   bool
	logger   *slog.Logger
}

func newChangeBroadcaster(logger *slog.Logger) *changeBroadcaster {
	return &changeBroadcaster{
		watchers: make(map[string]chan Change),
		logger:   logger,
	}
}

// subscribe registers a watcher that is removed when ctx is cancelled.
func (b *changeBroadcaster) subscribe(ctx context.Context) <-chan Change {
	subID := uuid.New().String()
	ch := make(chan Change, watcherBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.watchers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("watcher added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.unsubscribe(subID)
	}()

	return ch
}

// publish delivers a change to every watcher without blocking.
func (b *changeBroadcaster) publish(change Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.watchers {
		select {
		case ch <- change:
		default:
			b.logger.Debug("dropped change for slow watcher", "sub_id", id, "kind", change.Kind)
		}
	}
}

func (b *changeBroadcaster) unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.watchers[subID]
	if !ok {
		return
	}
	delete(b.watchers, subID)
	close(ch)
	b.logger.Debug("watcher removed", "sub_id", subID)
}

// close closes every watcher channel. Later subscriptions get a closed channel.
func (b *changeBroadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.watchers {
		close(ch)
		delete(b.watchers, id)
	}
	b.closed = true
}
