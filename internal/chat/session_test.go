package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clipnote/clipnote/internal/api"
	"github.com/clipnote/clipnote/internal/auth"
	"github.com/clipnote/clipnote/internal/ratelimit"
	"github.com/clipnote/clipnote/internal/readiness"
	"github.com/clipnote/clipnote/internal/store"
)

const testVideoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func stream(deltas ...string) string {
	var b strings.Builder
	for _, d := range deltas {
		fmt.Fprintf(&b, "data: {\"content\": %q}\n\n", d)
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

// fakeBackend scripts the three calls a session makes. All fields are
// guarded so stream goroutines and tests can inspect them safely.
type fakeBackend struct {
	mu sync.Mutex

	ready     bool
	createErr error
	createID  string
	creates   int

	streamBody string
	streamConv string
	streamErr  error
	streams    []api.ChatRequest
}

func (f *fakeBackend) VideoStatus(ctx context.Context, videoID string) (api.Readiness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready {
		return api.Readiness{}, nil
	}
	return api.Readiness{
		TranscriptAvailable: true,
		Metadata:            &api.VideoMetadata{Title: "t", Channel: "c", DurationSeconds: 1},
		Summary:             "s",
	}, nil
}

func (f *fakeBackend) CreateConversation(ctx context.Context, videoID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.createID, nil
}

func (f *fakeBackend) StreamChat(ctx context.Context, req api.ChatRequest) (io.ReadCloser, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, req)
	if f.streamErr != nil {
		return nil, "", f.streamErr
	}
	return io.NopCloser(strings.NewReader(f.streamBody)), f.streamConv, nil
}

func (f *fakeBackend) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func (f *fakeBackend) lastRequest(t *testing.T) api.ChatRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		t.Fatal("no chat request was sent")
	}
	return f.streams[len(f.streams)-1]
}

// recordingNotifier captures events for assertion.
type recordingNotifier struct {
	mu       sync.Mutex
	first    []string
	ended    []error
	quota    []ratelimit.Limit
	reauthed int
}

func (n *recordingNotifier) FirstDelta(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.first = append(n.first, id)
}
func (n *recordingNotifier) Delta(string, string) {}
func (n *recordingNotifier) StreamEnded(_ string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, err)
}
func (n *recordingNotifier) QuotaExceeded(l ratelimit.Limit) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.quota = append(n.quota, l)
}
func (n *recordingNotifier) ReauthRequired() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reauthed++
}

func newTestResolver() *auth.Resolver {
	return auth.NewResolver(auth.NewCredentials(store.NewMemory()), store.NewMemory())
}

func newReadySession(t *testing.T, backend *fakeBackend, opts ...Option) *Session {
	t.Helper()
	backend.mu.Lock()
	backend.ready = true
	backend.mu.Unlock()

	opts = append([]Option{WithPolling(time.Millisecond, time.Second)}, opts...)
	s := NewSession(backend, newTestResolver(), opts...)
	t.Cleanup(s.Close)
	if err := s.SetVideoReference(testVideoURL); err != nil {
		t.Fatalf("SetVideoReference: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if st, _ := s.WaitReady(ctx); st != readiness.StatusReady {
		t.Fatalf("status = %v, want ready", st)
	}
	return s
}

func TestSubmitStreamsAnswer(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		createID:   "conv-1",
		streamBody: stream("The video ", "covers [1:05]."),
	}
	notifier := &recordingNotifier{}
	s := newReadySession(t, backend, WithNotifier(notifier))

	if err := s.Submit(context.Background(), "what is this about?"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "what is this about?" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "The video covers [1:05]." {
		t.Errorf("assistant message = %+v", msgs[1])
	}
	if got := s.ConversationID(); got != "conv-1" {
		t.Errorf("conversation id = %q, want conv-1", got)
	}
	if req := backend.lastRequest(t); req.ConversationID != "conv-1" {
		t.Errorf("request carried conversation id %q, want conv-1", req.ConversationID)
	}
	if len(notifier.first) != 1 {
		t.Errorf("FirstDelta fired %d times, want 1", len(notifier.first))
	}
}

func TestSubmitBlankIsNoop(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{createID: "conv-1", streamBody: stream("hi")}
	s := newReadySession(t, backend)

	if err := s.Submit(context.Background(), "   \n\t"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := len(s.Messages()); got != 0 {
		t.Errorf("got %d messages, want 0", got)
	}
}

// pipeBackend hangs chat streams on io.Pipes so tests can hold submissions
// in flight; each StreamChat call consumes the next scripted body.
type pipeBackend struct {
	fakeBackend
	bodies []io.ReadCloser
	convs  []string
}

func (p *pipeBackend) StreamChat(ctx context.Context, req api.ChatRequest) (io.ReadCloser, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streams = append(p.streams, req)
	body := io.NopCloser(strings.NewReader(""))
	if len(p.bodies) > 0 {
		body = p.bodies[0]
		p.bodies = p.bodies[1:]
	}
	conv := "conv-1"
	if len(p.convs) > 0 {
		conv = p.convs[0]
		p.convs = p.convs[1:]
	}
	return body, conv, nil
}

func newPipeSession(t *testing.T, backend *pipeBackend) *Session {
	t.Helper()
	s := NewSession(backend, newTestResolver(), WithPolling(time.Millisecond, time.Second))
	t.Cleanup(s.Close)
	if err := s.SetVideoReference(testVideoURL); err != nil {
		t.Fatalf("SetVideoReference: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if st, _ := s.WaitReady(ctx); st != readiness.StatusReady {
		t.Fatalf("status = %v, want ready", st)
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSubmitRejectedWhileInFlight(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	backend := &pipeBackend{
		fakeBackend: fakeBackend{createID: "conv-1", ready: true},
		bodies:      []io.ReadCloser{io.NopCloser(pr)},
	}
	s := newPipeSession(t, backend)

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), "first") }()
	waitFor(t, "the first submission to start streaming", func() bool { return len(s.Messages()) == 2 })

	if err := s.Submit(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Submit = %v, want ErrBusy", err)
	}
	if got := len(s.Messages()); got != 2 {
		t.Errorf("got %d messages, want 2 (rejected turn left no trace)", got)
	}

	fmt.Fprint(pw, stream("done"))
	pw.Close()
	if err := <-done; err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	if err := s.Submit(context.Background(), "third"); errors.Is(err, ErrBusy) {
		t.Error("third Submit still rejected after the stream ended")
	}
}

func TestNewChatDetachesInFlightStream(t *testing.T) {
	t.Parallel()

	prA, pwA := io.Pipe()
	prB, pwB := io.Pipe()
	backend := &pipeBackend{
		fakeBackend: fakeBackend{createErr: errors.New("unavailable"), ready: true},
		bodies:      []io.ReadCloser{io.NopCloser(prA), io.NopCloser(prB)},
		convs:       []string{"conv-a", "conv-b"},
	}
	s := newPipeSession(t, backend)

	doneA := make(chan error, 1)
	go func() { doneA <- s.Submit(context.Background(), "old question") }()
	waitFor(t, "the old submission to start streaming", func() bool { return len(s.Messages()) == 2 })

	s.NewChat()
	if got := len(s.Messages()); got != 0 {
		t.Fatalf("got %d messages after NewChat, want 0", got)
	}

	doneB := make(chan error, 1)
	go func() { doneB <- s.Submit(context.Background(), "new question") }()
	waitFor(t, "the new submission to start streaming", func() bool { return len(s.Messages()) == 2 })

	// The old stream ends while the new one is still open. Its deltas and
	// its completion must not leak into the new chat.
	fmt.Fprint(pwA, stream("stale answer"))
	pwA.Close()
	if err := <-doneA; err != nil {
		t.Fatalf("old Submit: %v", err)
	}

	if err := s.Submit(context.Background(), "interloper"); !errors.Is(err, ErrBusy) {
		t.Errorf("Submit during the new stream = %v, want ErrBusy", err)
	}
	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[1].Content != "" {
		t.Errorf("new placeholder content = %q, want empty (no stale deltas)", msgs[1].Content)
	}

	fmt.Fprint(pwB, stream("fresh answer"))
	pwB.Close()
	if err := <-doneB; err != nil {
		t.Fatalf("new Submit: %v", err)
	}
	msgs = s.Messages()
	if len(msgs) != 2 || msgs[1].Content != "fresh answer" {
		t.Errorf("messages after the new stream = %+v", msgs)
	}
	if got := s.ConversationID(); got != "conv-b" {
		t.Errorf("conversation id = %q, want conv-b", got)
	}
}

func TestVideoSwitchMidStreamDiscardsDeltas(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	backend := &pipeBackend{
		fakeBackend: fakeBackend{createID: "conv-1", ready: true},
		bodies:      []io.ReadCloser{io.NopCloser(pr)},
	}
	s := newPipeSession(t, backend)

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), "hi") }()
	waitFor(t, "the submission to start streaming", func() bool { return len(s.Messages()) == 2 })

	fmt.Fprint(pw, "data: {\"content\": \"before the switch\"}\n\n")
	waitFor(t, "the first delta to land", func() bool {
		msgs := s.Messages()
		return len(msgs) == 2 && msgs[1].Content != ""
	})

	if err := s.SetVideoReference("https://youtu.be/abcdefghijk"); err != nil {
		t.Fatalf("SetVideoReference: %v", err)
	}

	// Deltas still arriving for the stale message are dropped silently.
	fmt.Fprint(pw, stream("after the switch"))
	pw.Close()
	if err := <-done; err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := len(s.Messages()); got != 0 {
		t.Errorf("got %d messages after switch, want 0", got)
	}
	if got := s.ConversationID(); got != "" {
		t.Errorf("conversation id = %q after switch, want empty", got)
	}
}

func TestConversationAdoptedFromResponseHeader(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		createErr:  errors.New("boom"),
		streamConv: "conv-9",
		streamBody: stream("hello"),
	}
	s := newReadySession(t, backend)

	if err := s.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req := backend.lastRequest(t); req.ConversationID != "" {
		t.Errorf("request carried conversation id %q, want empty", req.ConversationID)
	}
	if got := s.ConversationID(); got != "conv-9" {
		t.Errorf("conversation id = %q, want conv-9", got)
	}
}

func TestEmptyStreamDropsPlaceholder(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{createID: "conv-1", streamBody: "data: [DONE]\n\n"}
	s := newReadySession(t, backend)

	if err := s.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Role != RoleUser {
		t.Fatalf("messages = %+v, want only the user message", msgs)
	}
}

func TestInterruptedStreamKeepsPartial(t *testing.T) {
	t.Parallel()

	body := "data: {\"content\": \"partial answer\"}\n\n" // no [DONE]
	backend := &fakeBackend{createID: "conv-1", streamBody: body}
	notifier := &recordingNotifier{}
	s := newReadySession(t, backend, WithNotifier(notifier))

	err := s.Submit(context.Background(), "hi")
	if err == nil {
		t.Fatal("Submit should report the interruption")
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	want := "partial answer\n" + interruptedMarker
	if msgs[1].Content != want {
		t.Errorf("assistant content = %q, want %q", msgs[1].Content, want)
	}
	if len(notifier.ended) != 1 || notifier.ended[0] == nil {
		t.Errorf("StreamEnded = %v, want one non-nil error", notifier.ended)
	}
}

func TestUnauthorizedDropsPlaceholderAndNotifies(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{createID: "conv-1", streamErr: api.ErrUnauthorized}
	notifier := &recordingNotifier{}
	s := newReadySession(t, backend, WithNotifier(notifier))

	err := s.Submit(context.Background(), "hi")
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("Submit error = %v, want ErrUnauthorized", err)
	}
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Role != RoleUser {
		t.Fatalf("messages = %+v, want only the user message", msgs)
	}
	if notifier.reauthed != 1 {
		t.Errorf("ReauthRequired fired %d times, want 1", notifier.reauthed)
	}
}

func TestQuotaExhaustedClassifiesLimit(t *testing.T) {
	t.Parallel()

	body := []byte(`{"error": {"details": {"reset_in_seconds": 300}}}`)
	backend := &fakeBackend{createID: "conv-1", streamErr: &api.QuotaError{Body: body}}
	notifier := &recordingNotifier{}
	s := newReadySession(t, backend, WithNotifier(notifier))

	var qe *api.QuotaError
	if err := s.Submit(context.Background(), "hi"); !errors.As(err, &qe) {
		t.Fatalf("Submit error = %v, want QuotaError", err)
	}
	if len(notifier.quota) != 1 {
		t.Fatalf("QuotaExceeded fired %d times, want 1", len(notifier.quota))
	}
	if limit := notifier.quota[0]; limit.Tier != ratelimit.TierGuest {
		t.Errorf("tier = %v, want guest", limit.Tier)
	}
	if got := len(s.Messages()); got != 1 {
		t.Errorf("got %d messages, want only the user message", got)
	}
}

func TestServerErrorSurfacesInPlaceholder(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		createID:  "conv-1",
		streamErr: &api.RequestError{StatusCode: 500, Message: "transcript unavailable"},
	}
	s := newReadySession(t, backend)

	if err := s.Submit(context.Background(), "hi"); err == nil {
		t.Fatal("Submit should report the failure")
	}
	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if want := "Error: transcript unavailable"; msgs[1].Content != want {
		t.Errorf("assistant content = %q, want %q", msgs[1].Content, want)
	}
}

func TestSubmitRequiresReadyVideo(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{} // never ready
	s := NewSession(backend, newTestResolver(), WithPolling(time.Millisecond, 20*time.Millisecond))
	t.Cleanup(s.Close)

	if err := s.Submit(context.Background(), "hi"); !errors.Is(err, ErrNoVideo) {
		t.Fatalf("Submit with no video = %v, want ErrNoVideo", err)
	}
	if err := s.SetVideoReference(testVideoURL); err != nil {
		t.Fatalf("SetVideoReference: %v", err)
	}
	if err := s.Submit(context.Background(), "hi"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Submit while polling = %v, want ErrNotReady", err)
	}
}

func TestRefreshReadinessRestartsAfterTimeout(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{} // not ready yet
	s := NewSession(backend, newTestResolver(), WithPolling(time.Millisecond, 15*time.Millisecond))
	t.Cleanup(s.Close)
	if err := s.SetVideoReference(testVideoURL); err != nil {
		t.Fatalf("SetVideoReference: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if st, _ := s.WaitReady(ctx); st != readiness.StatusTimedOut {
		t.Fatalf("status = %v, want timed out", st)
	}

	backend.mu.Lock()
	backend.ready = true
	backend.mu.Unlock()

	s.RefreshReadiness()
	if st, _ := s.WaitReady(ctx); st != readiness.StatusReady {
		t.Fatalf("status after refresh = %v, want ready", st)
	}
}

func TestVideoSwitchResetsConversation(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{createID: "conv-1", streamBody: stream("hello")}
	s := newReadySession(t, backend)

	if err := s.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := len(s.Messages()); got != 2 {
		t.Fatalf("got %d messages before switch", got)
	}

	if err := s.SetVideoReference("https://youtu.be/abcdefghijk"); err != nil {
		t.Fatalf("SetVideoReference: %v", err)
	}
	if got := len(s.Messages()); got != 0 {
		t.Errorf("got %d messages after switch, want 0", got)
	}
	if got := s.ConversationID(); got != "" {
		t.Errorf("conversation id = %q after switch, want empty", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if st, _ := s.WaitReady(ctx); st != readiness.StatusReady {
		t.Fatalf("new video status = %v, want ready", st)
	}
}

func TestSameVideoReferenceIsNoop(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{createID: "conv-1", streamBody: stream("hello")}
	s := newReadySession(t, backend)
	if err := s.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Same id through a different URL shape.
	if err := s.SetVideoReference("https://youtu.be/dQw4w9WgXcQ"); err != nil {
		t.Fatalf("SetVideoReference: %v", err)
	}
	if got := len(s.Messages()); got != 2 {
		t.Errorf("got %d messages, want 2 (state preserved)", got)
	}
}

func TestNewChatKeepsVideoDiscardsHistory(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{createID: "conv-1", streamBody: stream("hello")}
	s := newReadySession(t, backend)
	if err := s.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	backend.mu.Lock()
	backend.createID = "conv-2"
	backend.mu.Unlock()

	s.NewChat()
	if got := len(s.Messages()); got != 0 {
		t.Errorf("got %d messages after NewChat, want 0", got)
	}
	if got := s.ReadinessStatus(); got != readiness.StatusReady {
		t.Errorf("readiness after NewChat = %v, want ready (unchanged)", got)
	}

	// The eager create runs in the background; wait for adoption.
	deadline := time.After(time.Second)
	for s.ConversationID() != "conv-2" {
		select {
		case <-deadline:
			t.Fatalf("conversation id = %q, want conv-2", s.ConversationID())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestCreateFailureDoesNotBlockSubmission(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		createErr:  errors.New("unavailable"),
		streamBody: stream("hello"),
	}
	s := newReadySession(t, backend)

	if err := s.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req := backend.lastRequest(t); req.ConversationID != "" {
		t.Errorf("request carried conversation id %q, want empty", req.ConversationID)
	}

	// A later create success is adopted on the next turn.
	backend.mu.Lock()
	backend.createErr = nil
	backend.createID = "conv-late"
	backend.mu.Unlock()

	if err := s.Submit(context.Background(), "again"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req := backend.lastRequest(t); req.ConversationID != "conv-late" {
		t.Errorf("request carried conversation id %q, want conv-late", req.ConversationID)
	}
}
