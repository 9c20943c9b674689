package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipnote/clipnote/internal/server/conversation"
)

type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation.Conversation
}

func NewConversationStore() *Store {
	return &Store{conversations: make(map[string]*conversation.Conversation)}
}

func (s *Store) Create(ctx context.Context, videoID string) (conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := &conversation.Conversation{
		ID:        uuid.NewString(),
		VideoID:   videoID,
		CreatedAt: time.Now(),
	}
	s.conversations[conv.ID] = conv
	return *conv, nil
}

func (s *Store) Get(ctx context.Context, id string) (conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return conversation.Conversation{}, conversation.ErrNotFound
	}
	out := *conv
	out.Messages = append([]conversation.Message(nil), conv.Messages...)
	return out, nil
}

func (s *Store) Append(ctx context.Context, id string, msg conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return conversation.ErrNotFound
	}
	conv.Messages = append(conv.Messages, msg)
	return nil
}
