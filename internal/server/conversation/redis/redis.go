// Package redis stores conversations as JSON blobs in redis with a TTL, so a
// backend restart keeps recent chats alive.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clipnote/clipnote/internal/server/conversation"
)

const defaultTTL = 24 * time.Hour

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewConversationStore(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s): %w", addr, err)
	}
	return &Store{client: client, ttl: defaultTTL}, nil
}

func key(id string) string { return "conversation:" + id }

func (s *Store) Create(ctx context.Context, videoID string) (conversation.Conversation, error) {
	conv := conversation.Conversation{
		ID:        uuid.NewString(),
		VideoID:   videoID,
		CreatedAt: time.Now(),
	}
	if err := s.save(ctx, conv); err != nil {
		return conversation.Conversation{}, err
	}
	return conv, nil
}

func (s *Store) Get(ctx context.Context, id string) (conversation.Conversation, error) {
	val, err := s.client.Get(ctx, key(id)).Result()
	if err == redis.Nil {
		return conversation.Conversation{}, conversation.ErrNotFound
	}
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("loading conversation %s: %w", id, err)
	}
	var conv conversation.Conversation
	if err := json.Unmarshal([]byte(val), &conv); err != nil {
		return conversation.Conversation{}, fmt.Errorf("decoding conversation %s: %w", id, err)
	}
	return conv, nil
}

func (s *Store) Append(ctx context.Context, id string, msg conversation.Message) error {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	conv.Messages = append(conv.Messages, msg)
	return s.save(ctx, conv)
}

func (s *Store) save(ctx context.Context, conv conversation.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key(conv.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving conversation %s: %w", conv.ID, err)
	}
	return nil
}
