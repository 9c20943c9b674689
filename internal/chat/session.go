// Package chat owns the conversation lifecycle for one video: the message
// list, lazy conversation creation, streamed turn submission, and the
// readiness gate. A Session is the single aggregate behind which identity,
// polling, and streaming all react to the video reference changing.
package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipnote/clipnote/internal/api"
	"github.com/clipnote/clipnote/internal/auth"
	"github.com/clipnote/clipnote/internal/logging"
	"github.com/clipnote/clipnote/internal/ratelimit"
	"github.com/clipnote/clipnote/internal/readiness"
	"github.com/clipnote/clipnote/internal/sse"
	"github.com/clipnote/clipnote/internal/videoref"
)

// interruptedMarker is appended to whatever partial content survived a broken
// stream. Square brackets without a timestamp render as literal text, so the
// marker is inert in the markup pass.
const interruptedMarker = "[response interrupted]"

var (
	ErrNoVideo  = errors.New("no video reference set")
	ErrBusy     = errors.New("a submission is already in flight")
	ErrNotReady = errors.New("video is still being prepared")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the conversation. Only the in-flight assistant
// message mutates; everything else is immutable once appended.
type Message struct {
	ID        string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Backend is the slice of the API client the session depends on.
type Backend interface {
	VideoStatus(ctx context.Context, videoID string) (api.Readiness, error)
	CreateConversation(ctx context.Context, videoID string) (string, error)
	StreamChat(ctx context.Context, req api.ChatRequest) (io.ReadCloser, string, error)
}

// Notifier receives session events as they happen so a UI can render
// incrementally. Calls arrive outside the session lock, so implementations
// may read session state.
type Notifier interface {
	FirstDelta(messageID string)
	Delta(messageID, text string)
	StreamEnded(messageID string, err error)
	QuotaExceeded(limit ratelimit.Limit)
	ReauthRequired()
}

type NopNotifier struct{}

func (NopNotifier) FirstDelta(string)             {}
func (NopNotifier) Delta(string, string)          {}
func (NopNotifier) StreamEnded(string, error)     {}
func (NopNotifier) QuotaExceeded(ratelimit.Limit) {}
func (NopNotifier) ReauthRequired()               {}

// Session is the top-level state machine. All state transitions go through
// one mutex; network I/O happens outside it.
type Session struct {
	backend      Backend
	resolver     *auth.Resolver
	notifier     Notifier
	pollInterval time.Duration
	pollBudget   time.Duration

	mu             sync.Mutex
	gen            int
	videoID        string
	conversationID string
	messages       []Message
	inFlight       bool
	poller         *readiness.Poller
	pollDone       chan struct{}
	videoCancel    context.CancelFunc
	streamCancel   context.CancelFunc
}

type Option func(*Session)

func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

func WithPolling(interval, budget time.Duration) Option {
	return func(s *Session) { s.pollInterval = interval; s.pollBudget = budget }
}

func NewSession(backend Backend, resolver *auth.Resolver, opts ...Option) *Session {
	s := &Session{
		backend:      backend,
		resolver:     resolver,
		notifier:     NopNotifier{},
		pollInterval: readiness.DefaultInterval,
		pollBudget:   readiness.DefaultBudget,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetVideoReference normalizes ref and switches the session to that video:
// conversation state and readiness polling reset together, as one transition.
// A stream in flight for the previous video stops being applied. Setting the
// same video again is a no-op.
func (s *Session) SetVideoReference(ref string) error {
	id, err := videoref.Parse(ref)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.videoID {
		return nil
	}
	s.resetLocked()
	s.videoID = id
	s.startPollingLocked()
	return nil
}

// resetLocked tears down the current video's state machines. Callers hold s.mu.
func (s *Session) resetLocked() {
	if s.videoCancel != nil {
		s.videoCancel()
		s.videoCancel = nil
	}
	if s.streamCancel != nil {
		s.streamCancel()
		s.streamCancel = nil
	}
	s.gen++
	s.videoID = ""
	s.conversationID = ""
	s.messages = nil
	s.inFlight = false
	s.poller = nil
	s.pollDone = nil
}

// startPollingLocked launches the readiness poller for the current video.
// Callers hold s.mu.
func (s *Session) startPollingLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	s.videoCancel = cancel
	s.poller = readiness.NewPoller(s.backend, s.pollInterval, s.pollBudget)
	s.pollDone = make(chan struct{})

	poller, done, videoID := s.poller, s.pollDone, s.videoID
	go func() {
		defer close(done)
		poller.Run(ctx, videoID)
	}()
}

// WaitReady blocks until readiness polling reaches a terminal state or ctx is
// cancelled, then reports the poller's status and last snapshot.
func (s *Session) WaitReady(ctx context.Context) (readiness.Status, api.Readiness) {
	s.mu.Lock()
	poller, done := s.poller, s.pollDone
	s.mu.Unlock()
	if poller == nil {
		return readiness.StatusIdle, api.Readiness{}
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
	return poller.Status(), poller.Snapshot()
}

// RefreshReadiness restarts polling after a timeout. It is the manual-reload
// affordance; the session never retries a timed-out poll on its own.
func (s *Session) RefreshReadiness() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.videoID == "" || s.poller == nil || s.poller.Status() != readiness.StatusTimedOut {
		return
	}
	if s.videoCancel != nil {
		s.videoCancel()
	}
	s.startPollingLocked()
}

func (s *Session) ReadinessStatus() readiness.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poller == nil {
		return readiness.StatusIdle
	}
	return s.poller.Status()
}

// Messages returns a copy of the conversation, including any in-flight
// placeholder. Renderers skip assistant messages with empty content.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// NewChat discards the conversation (history and id) while keeping the video
// and its readiness state, then eagerly asks for a fresh conversation id.
// The eager create is fire-and-forget: if it fails, the next submission
// retries creation.
func (s *Session) NewChat() {
	s.mu.Lock()
	if s.videoID == "" {
		s.mu.Unlock()
		return
	}
	if s.streamCancel != nil {
		s.streamCancel()
		s.streamCancel = nil
	}
	// Bump the generation so a stream still draining for the old chat can
	// no longer touch messages, inFlight, or the conversation id.
	s.gen++
	s.messages = nil
	s.conversationID = ""
	s.inFlight = false
	gen, videoID := s.gen, s.videoID
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		id, err := s.backend.CreateConversation(ctx, videoID)
		if err != nil {
			slog.Debug("eager conversation create failed", "video_id", videoID, logging.Err(err))
			return
		}
		s.adoptConversationID(gen, id)
	}()
}

// Submit sends one user turn and blocks while the assistant's answer streams
// in. It is a no-op (beyond its error return) when the text is blank, a
// submission is already in flight, or the video is not ready yet.
func (s *Session) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.videoID == "" {
		s.mu.Unlock()
		return ErrNoVideo
	}
	if s.inFlight {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.poller == nil || s.poller.Status() != readiness.StatusReady {
		s.mu.Unlock()
		return ErrNotReady
	}

	gen, videoID, convID := s.gen, s.videoID, s.conversationID
	userMsg := Message{ID: uuid.NewString(), Role: RoleUser, Content: text, CreatedAt: time.Now()}
	placeholder := Message{ID: uuid.NewString(), Role: RoleAssistant, CreatedAt: time.Now()}
	s.messages = append(s.messages, userMsg, placeholder)
	s.inFlight = true
	streamCtx, cancel := context.WithCancel(ctx)
	s.streamCancel = cancel
	s.mu.Unlock()

	defer cancel()
	defer s.endFlight(gen)

	// Best-effort conversation creation: a failure here is tolerated, the
	// chat request goes out without an id and adopts one from the response.
	if convID == "" {
		if id, err := s.backend.CreateConversation(streamCtx, videoID); err == nil {
			convID = id
			s.adoptConversationID(gen, id)
		} else {
			slog.Debug("conversation create failed, proceeding without id",
				"video_id", videoID, logging.Err(err))
		}
	}

	body, respConvID, err := s.backend.StreamChat(streamCtx, api.ChatRequest{
		VideoID:        videoID,
		Message:        text,
		ConversationID: convID,
	})
	if err != nil {
		return s.submitFailed(gen, placeholder.ID, err)
	}
	defer body.Close()
	if convID == "" && respConvID != "" {
		s.adoptConversationID(gen, respConvID)
	}

	return s.consumeStream(gen, placeholder.ID, body)
}

// consumeStream applies deltas to the placeholder until the stream ends.
// Deltas are tagged with the message id they target; once that message is
// gone (video switched, chat reset) applying stops.
func (s *Session) consumeStream(gen int, messageID string, body io.Reader) error {
	dec := sse.NewDecoder(body)
	for {
		delta, err := dec.Next()
		if err == io.EOF {
			s.finishMessage(gen, messageID, nil)
			return nil
		}
		if err != nil {
			s.finishMessage(gen, messageID, err)
			return err
		}
		if delta.First {
			s.notifier.FirstDelta(messageID)
		}
		if !s.applyDelta(gen, messageID, delta.Text) {
			return nil
		}
	}
}

// applyDelta appends text to the target message. A moot update (stale
// generation or vanished message) reports false so the caller stops
// consuming; it is never an error.
func (s *Session) applyDelta(gen int, messageID, text string) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	msg := s.findLocked(messageID)
	if msg == nil {
		s.mu.Unlock()
		return false
	}
	msg.Content += text
	s.mu.Unlock()
	s.notifier.Delta(messageID, text)
	return true
}

// finishMessage settles the placeholder when its stream ends. A clean end
// with zero deltas drops the placeholder rather than leaving a silent blank
// bubble; an interruption keeps the partial content and appends a marker.
func (s *Session) finishMessage(gen int, messageID string, streamErr error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	msg := s.findLocked(messageID)
	if msg == nil {
		s.mu.Unlock()
		return
	}
	switch {
	case streamErr == nil && msg.Content == "":
		s.removeLocked(messageID)
	case streamErr != nil && msg.Content == "":
		msg.Content = interruptedMarker
	case streamErr != nil:
		msg.Content += "\n" + interruptedMarker
	}
	s.mu.Unlock()
	s.notifier.StreamEnded(messageID, streamErr)
}

// submitFailed routes a failed chat request through the error taxonomy.
func (s *Session) submitFailed(gen int, messageID string, err error) error {
	var qe *api.QuotaError
	var re *api.RequestError
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		// The API client already evicted the credential.
		s.dropMessage(gen, messageID)
		s.notifier.ReauthRequired()
	case errors.As(err, &qe):
		s.dropMessage(gen, messageID)
		s.notifier.QuotaExceeded(ratelimit.Classify(s.resolver.Resolve(), qe.Body))
	case errors.As(err, &re):
		s.replaceContent(gen, messageID, "Error: "+re.Message)
	default:
		slog.Warn("chat request failed", logging.Err(err))
		s.replaceContent(gen, messageID, "Error: could not reach the server")
	}
	return err
}

func (s *Session) endFlight(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.gen {
		s.inFlight = false
	}
}

func (s *Session) adoptConversationID(gen int, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.gen && s.conversationID == "" && id != "" {
		s.conversationID = id
	}
}

func (s *Session) dropMessage(gen int, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.removeLocked(messageID)
}

func (s *Session) replaceContent(gen int, messageID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	if msg := s.findLocked(messageID); msg != nil {
		msg.Content = content
	}
}

func (s *Session) findLocked(messageID string) *Message {
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			return &s.messages[i]
		}
	}
	return nil
}

func (s *Session) removeLocked(messageID string) {
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// Close stops polling and any in-flight stream.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}
