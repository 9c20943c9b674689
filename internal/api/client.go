// Package api is the typed HTTP client for the clipnote backend. It owns the
// wire contract: endpoint shapes, identity headers, and the mapping from
// transport failures to the error taxonomy the session engine acts on.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clipnote/clipnote/internal/auth"
)

type Client struct {
	baseURL  string
	resolver *auth.Resolver
	hc       *http.Client
	// streamHC carries no overall timeout: a chat response legitimately stays
	// open for the duration of generation. Cancellation rides the context.
	streamHC *http.Client
}

func NewClient(baseURL string, resolver *auth.Resolver) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		resolver: resolver,
		hc:       &http.Client{Timeout: 15 * time.Second},
		streamHC: &http.Client{},
	}
}

// VideoStatus fetches the backend's readiness report for a video.
func (c *Client) VideoStatus(ctx context.Context, videoID string) (Readiness, error) {
	var out Readiness
	if err := c.doJSON(ctx, http.MethodGet, "/api/videos/"+videoID+"/status", nil, &out); err != nil {
		return Readiness{}, fmt.Errorf("fetching video status: %w", err)
	}
	return out, nil
}

// CreateConversation asks the backend for a fresh conversation id scoped to
// the video.
func (c *Client) CreateConversation(ctx context.Context, videoID string) (string, error) {
	var out ConversationCreated
	if err := c.doJSON(ctx, http.MethodPost, "/api/videos/"+videoID+"/conversations", nil, &out); err != nil {
		return "", fmt.Errorf("creating conversation: %w", err)
	}
	return out.ConversationID, nil
}

// StreamChat submits a chat turn and returns the SSE response body plus the
// conversation id the backend attached to the turn, letting a caller that
// submitted without an established conversation adopt one. The caller owns
// the body and must close it.
func (c *Client) StreamChat(ctx context.Context, chat ChatRequest) (io.ReadCloser, string, error) {
	req, identity, err := c.newRequest(ctx, http.MethodPost, "/api/chat", chat)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamHC.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("sending chat request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, "", c.responseError(resp, identity)
	}
	return resp.Body, resp.Header.Get("X-Conversation-ID"), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, identity, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.responseError(resp, identity)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, auth.Identity, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, auth.Identity{}, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, auth.Identity{}, err
	}
	identity := c.resolver.Resolve()
	for k, v := range identity.Headers() {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, identity, nil
}

// responseError maps a non-success response to the error taxonomy. A 401
// against an authenticated identity evicts the stored credential here, in the
// one place every backend call funnels through.
func (c *Client) responseError(resp *http.Response, identity auth.Identity) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if identity.Kind == auth.KindAuthenticated {
			c.resolver.Invalidate()
		}
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return &QuotaError{Body: body}
	default:
		return &RequestError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, body)}
	}
}

// Login exchanges account credentials for a signed token and stores it.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var out struct {
		Token string `json:"token"`
	}
	payload := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", payload, &out); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	if out.Token == "" {
		return fmt.Errorf("login response carried no token")
	}
	c.resolver.SaveCredential(out.Token)
	return nil
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, email, password string) error {
	payload := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/signup", payload, nil); err != nil {
		return fmt.Errorf("signing up: %w", err)
	}
	return nil
}
