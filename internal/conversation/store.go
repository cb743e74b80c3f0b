// ABOUTME: Conversation store holding the chat list, active message buffer and active id
// ABOUTME: Optimistic sends with exact rollback and write-through persistence to the cache

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/compliai/internal/client"
	"github.com/2389/compliai/internal/events"
	"github.com/2389/compliai/internal/store"
)

// Cache namespace and keys owned by the conversation store.
const (
	CacheNamespace        = "compliai.chat"
	KeyConversations      = "conversations"
	KeyMessages           = "messages"
	KeyActiveConversation = "active_conversation"
)

// ChatAPI is the backend surface the store needs.
type ChatAPI interface {
	SendMessage(ctx context.Context, req client.ChatRequest) (*client.ChatResponse, error)
	ListConversations(ctx context.Context) ([]client.ConversationSummary, error)
	GetConversationHistory(ctx context.Context, conversationID string) ([]client.HistoryEntry, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// SendOptions is the context sent along with a message.
type SendOptions struct {
	Framework  client.Framework
	DocumentID string
	Mode       string
}

// Store owns conversation state for the signed-in user.
type Store struct {
	api     ChatAPI
	cache   *store.Namespaced
	bus     *events.Bus
	logger  *slog.Logger
	changes *changeBroadcaster
	now     func() time.Time

	mu            sync.RWMutex
	conversations []Conversation
	messages      []Message
	activeID      string
	epoch         uint64 // bumped whenever the active buffer is replaced
	lastErr       error

	initOnce    sync.Once
	unsubscribe func()
}

// NewStore creates a store that clears itself when the session manager
// reports a logout. Expiry reaches the store through that logout, after the
// manager has discarded stale rejections. Pass nil logger for default.
func NewStore(api ChatAPI, cache store.Cache, bus *events.Bus, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "conversation")
	s := &Store{
		api:     api,
		cache:   store.Namespace(cache, CacheNamespace),
		bus:     bus,
		logger:  logger,
		changes: newChangeBroadcaster(logger),
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.unsubscribe = bus.On(s.handleSessionEnd, events.KindLogout)
	return s
}

// Init hydrates memory from the cache. Only the first call has any effect.
// Unreadable entries are dropped from the cache and treated as absent.
func (s *Store) Init(ctx context.Context) {
	s.initOnce.Do(func() {
		var (
			conversations []Conversation
			messages      []Message
			activeID      string
		)
		s.load(ctx, KeyConversations, &conversations)
		s.load(ctx, KeyMessages, &messages)
		s.load(ctx, KeyActiveConversation, &activeID)

		s.mu.Lock()
		s.conversations = conversations
		s.messages = messages
		s.activeID = activeID
		s.mu.Unlock()

		s.logger.Debug("restored conversation state",
			"conversations", len(conversations),
			"messages", len(messages),
			"active", activeID)
	})
}

func (s *Store) load(ctx context.Context, key string, v any) {
	err := store.GetJSON(ctx, s.cache, key, v)
	switch {
	case err == nil, errors.Is(err, store.ErrNotFound):
	default:
		s.logger.Warn("discarding unreadable cache entry", "key", key, "error", err)
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to delete cache entry", "key", key, "error", err)
		}
	}
}

// LoadConversations replaces the conversation list with the backend's.
func (s *Store) LoadConversations(ctx context.Context) bool {
	if err := s.refreshConversations(ctx); err != nil {
		s.fail("load conversations", err)
		return false
	}
	return true
}

func (s *Store) refreshConversations(ctx context.Context) error {
	list, err := s.api.ListConversations(ctx)
	if err != nil {
		return err
	}
	conversations := conversationsFromSummaries(list)

	s.mu.Lock()
	s.conversations = conversations
	s.persistConversations(ctx)
	s.mu.Unlock()

	s.changes.publish(Change{Kind: ChangeConversations})
	return nil
}

// LoadConversationHistory replaces the message buffer with a conversation's
// history and makes it the active conversation.
func (s *Store) LoadConversationHistory(ctx context.Context, conversationID string) bool {
	entries, err := s.api.GetConversationHistory(ctx, conversationID)
	if err != nil {
		s.fail("load conversation history", err)
		return false
	}
	messages := messagesFromHistory(conversationID, entries)

	s.mu.Lock()
	s.messages = messages
	s.activeID = conversationID
	s.epoch++
	s.lastErr = nil
	s.persistMessages(ctx)
	s.persistActive(ctx)
	s.mu.Unlock()

	s.changes.publish(Change{Kind: ChangeActive, ConversationID: conversationID})
	return true
}

// SendMessage sends content in the active conversation, or starts a new one
// when none is active. Blank content is ignored.
func (s *Store) SendMessage(ctx context.Context, content string, opts SendOptions) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}

	s.mu.Lock()
	activeID := s.activeID
	epoch := s.epoch
	pending := Message{
		ID:             uuid.New().String(),
		Content:        content,
		Sender:         SenderUser,
		Timestamp:      s.now(),
		ConversationID: activeID,
	}
	s.messages = append(s.messages, pending)
	s.lastErr = nil
	s.persistMessages(ctx)
	s.mu.Unlock()
	s.changes.publish(Change{Kind: ChangeMessages, ConversationID: activeID})

	resp, err := s.api.SendMessage(ctx, client.ChatRequest{
		Message:          content,
		ConversationID:   activeID,
		FrameworkContext: opts.Framework,
		DocumentID:       opts.DocumentID,
		Mode:             opts.Mode,
	})
	if err != nil {
		s.rollback(ctx, pending.ID)
		s.fail("send message", err)
		return false
	}

	reply := Message{
		ID:               uuid.New().String(),
		Content:          resp.Response,
		Sender:           SenderAssistant,
		Timestamp:        s.now(),
		ConversationID:   resp.ConversationID,
		ConfidenceScore:  resp.ConfidenceScore,
		Sources:          resp.Sources,
		ClauseReferences: resp.ClauseReferences,
		ControlIDs:       resp.ControlIDs,
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.logger.Info("active conversation changed while sending, dropping reply",
			"conversation_id", resp.ConversationID)
	} else {
		if s.activeID == "" {
			s.activeID = resp.ConversationID
			for i := range s.messages {
				if s.messages[i].ID == pending.ID {
					s.messages[i].ConversationID = resp.ConversationID
				}
			}
			s.persistActive(ctx)
		}
		s.messages = append(s.messages, reply)
		s.persistMessages(ctx)
		s.mu.Unlock()
		s.changes.publish(Change{Kind: ChangeMessages, ConversationID: resp.ConversationID})
	}

	if err := s.refreshConversations(ctx); err != nil {
		s.logger.Warn("failed to refresh conversations after send", "error", err)
		if errors.Is(err, client.ErrUnauthorized) {
			s.bus.Emit(events.KindUnauthorized, nil)
		}
	}
	return true
}

// rollback removes exactly the optimistic message with id, if still present.
func (s *Store) rollback(ctx context.Context, id string) {
	s.mu.Lock()
	i := slices.IndexFunc(s.messages, func(m Message) bool { return m.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.messages = slices.Delete(s.messages, i, i+1)
	s.persistMessages(ctx)
	s.mu.Unlock()
	s.changes.publish(Change{Kind: ChangeMessages})
}

// CreateNewConversation clears the active buffer so the next send starts a
// new conversation. The conversation list is untouched.
func (s *Store) CreateNewConversation() {
	s.resetActive(ChangeActive)
}

// ClearMessages drops the active buffer and active id locally.
func (s *Store) ClearMessages() {
	s.resetActive(ChangeMessages)
}

func (s *Store) resetActive(kind ChangeKind) {
	ctx := context.Background()

	s.mu.Lock()
	s.messages = nil
	s.activeID = ""
	s.epoch++
	s.persistMessages(ctx)
	s.persistActive(ctx)
	s.mu.Unlock()

	s.changes.publish(Change{Kind: kind})
}

// DeleteConversation deletes a conversation on the backend and, once that
// succeeds, locally. Deleting the active conversation clears the buffer.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) bool {
	if err := s.api.DeleteConversation(ctx, conversationID); err != nil {
		s.fail("delete conversation", err)
		return false
	}

	s.mu.Lock()
	s.conversations = slices.DeleteFunc(s.conversations, func(c Conversation) bool {
		return c.ID == conversationID
	})
	s.persistConversations(ctx)
	wasActive := s.activeID == conversationID
	if wasActive {
		s.messages = nil
		s.activeID = ""
		s.epoch++
		s.persistMessages(ctx)
		s.persistActive(ctx)
	}
	s.lastErr = nil
	s.mu.Unlock()

	s.changes.publish(Change{Kind: ChangeConversations, ConversationID: conversationID})
	if wasActive {
		s.changes.publish(Change{Kind: ChangeActive})
	}
	return true
}

// ClearAllData drops conversations, messages and the active id, in memory
// and in the cache.
func (s *Store) ClearAllData() {
	ctx := context.Background()

	s.mu.Lock()
	s.conversations = nil
	s.messages = nil
	s.activeID = ""
	s.epoch++
	s.lastErr = nil
	if err := s.cache.Delete(ctx, KeyConversations, KeyMessages, KeyActiveConversation); err != nil {
		s.logger.Warn("failed to clear conversation cache", "error", err)
	}
	s.mu.Unlock()

	s.changes.publish(Change{Kind: ChangeCleared})
}

func (s *Store) handleSessionEnd(ev events.Event) error {
	s.logger.Debug("clearing conversation state", "trigger", ev.Kind)
	s.ClearAllData()
	return nil
}

// fail records a user-visible error. A 401 is handed to the session layer
// through the bus instead.
func (s *Store) fail(op string, err error) {
	if errors.Is(err, client.ErrUnauthorized) {
		s.logger.Warn(op + " rejected, credential no longer accepted")
		s.bus.Emit(events.KindUnauthorized, nil)
		return
	}

	s.logger.Warn(op+" failed", "error", err)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		err = fmt.Errorf("%s failed: %w", op, err)
	}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// persist* write memory to the cache. Caller holds s.mu.

func (s *Store) persistConversations(ctx context.Context) {
	if len(s.conversations) == 0 {
		s.deleteKey(ctx, KeyConversations)
		return
	}
	s.writeKey(ctx, KeyConversations, s.conversations)
}

func (s *Store) persistMessages(ctx context.Context) {
	if len(s.messages) == 0 {
		s.deleteKey(ctx, KeyMessages)
		return
	}
	s.writeKey(ctx, KeyMessages, s.messages)
}

func (s *Store) persistActive(ctx context.Context) {
	if s.activeID == "" {
		s.deleteKey(ctx, KeyActiveConversation)
		return
	}
	s.writeKey(ctx, KeyActiveConversation, s.activeID)
}

func (s *Store) writeKey(ctx context.Context, key string, v any) {
	if err := store.SetJSON(ctx, s.cache, key, v); err != nil {
		s.logger.Warn("failed to persist", "key", key, "error", err)
	}
}

func (s *Store) deleteKey(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete", "key", key, "error", err)
	}
}

// Conversations returns a copy of the conversation list, newest first.
func (s *Store) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.conversations)
}

// Messages returns a copy of the active message buffer.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// ActiveConversationID returns the active conversation id, or "".
func (s *Store) ActiveConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// LastError returns the error from the most recent failed operation.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ClearError clears the displayed error.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = nil
}

// Watch streams state changes until ctx is cancelled or the store is closed.
func (s *Store) Watch(ctx context.Context) <-chan Change {
	return s.changes.subscribe(ctx)
}

// Close unsubscribes from the bus and closes all watch channels.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.changes.close()
}
