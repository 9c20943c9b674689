// Package conversation defines the backend's conversation storage contract.
package conversation

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("conversation not found")

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Conversation struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"video_id"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// Store persists conversations for the chat endpoint.
type Store interface {
	Create(ctx context.Context, videoID string) (Conversation, error)
	Get(ctx context.Context, id string) (Conversation, error)
	Append(ctx context.Context, id string, msg Message) error
}
