package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clipnote/clipnote/internal/api"
	"github.com/clipnote/clipnote/internal/server/conversation"
)

// canned assistant answers, cycled per turn. They carry the citation and
// emphasis markup the client is expected to render.
var answers = []string{
	"The video opens with an introduction at [0:15] and the **main argument** starts around [1:05].",
	"That point is covered in two places: [2:30] and [5:10-5:45]. The **demo** at [5:10-5:45] is the clearer one.",
	"See [0:45], [3:20], [7:00] for the three examples. The **last one** goes into the most depth.",
	"The speaker summarizes everything at [9:30-10:00], so that section is the **best recap** of the whole video.",
}

type ChatHandler struct {
	Videos        *videoRegistry
	Conversations conversation.Store
	Quotas        *quotaLedger
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("/chat", h.chat)
}

func (h *ChatHandler) chat(c echo.Context) error {
	var req api.ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !videoIDPattern.MatchString(req.VideoID) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid video id")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	if !h.Videos.ready(req.VideoID) {
		return echo.NewHTTPError(http.StatusConflict, "video is still being prepared")
	}

	if ok, resetIn := h.Quotas.consume(callerID(c), callerIsUser(c)); !ok {
		return h.quotaExceeded(c, resetIn)
	}

	ctx := c.Request().Context()
	conv, err := h.resolveConversation(c, req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	userMsg := conversation.Message{Role: "user", Content: req.Message, CreatedAt: time.Now()}
	if err := h.Conversations.Append(ctx, conv.ID, userMsg); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	answer := pickAnswer(req.Message, len(conv.Messages))

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("X-Conversation-ID", conv.ID)
	res.WriteHeader(http.StatusOK)

	for _, chunk := range splitChunks(answer) {
		payload, _ := json.Marshal(map[string]string{"content": chunk})
		fmt.Fprintf(res, "data: %s\n\n", payload)
		res.Flush()
	}
	fmt.Fprint(res, "data: [DONE]\n\n")
	res.Flush()

	assistantMsg := conversation.Message{Role: "assistant", Content: answer, CreatedAt: time.Now()}
	if err := h.Conversations.Append(ctx, conv.ID, assistantMsg); err != nil {
		return err
	}
	chatTurns.Inc()
	return nil
}

// resolveConversation loads the requested conversation or creates a fresh one
// when the request carried no id or a stale one.
func (h *ChatHandler) resolveConversation(c echo.Context, req api.ChatRequest) (conversation.Conversation, error) {
	ctx := c.Request().Context()
	if req.ConversationID != "" {
		conv, err := h.Conversations.Get(ctx, req.ConversationID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, conversation.ErrNotFound) {
			return conversation.Conversation{}, err
		}
	}
	return h.Conversations.Create(ctx, req.VideoID)
}

// quotaExceeded renders the tier-specific 429 payload: registered callers get
// a structured reset hint, guests get a flat message inviting signup.
func (h *ChatHandler) quotaExceeded(c echo.Context, resetIn time.Duration) error {
	if callerIsUser(c) {
		quotaRejections.WithLabelValues("registered").Inc()
		seconds := int(math.Ceil(resetIn.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		return c.JSON(http.StatusTooManyRequests, map[string]any{
			"error": map[string]any{
				"message": "daily limit reached",
				"details": map[string]any{"reset_in_seconds": seconds},
			},
		})
	}
	quotaRejections.WithLabelValues("guest").Inc()
	return c.JSON(http.StatusTooManyRequests, map[string]any{
		"error": "guest limit reached, sign up to continue",
	})
}

func pickAnswer(message string, turn int) string {
	h := fnv.New32a()
	h.Write([]byte(message))
	return answers[(int(h.Sum32())+turn)%len(answers)]
}

// splitChunks breaks an answer into small word groups so the client sees a
// realistic incremental stream rather than one blob.
func splitChunks(answer string) []string {
	words := strings.Fields(answer)
	var chunks []string
	for i := 0; i < len(words); i += 2 {
		end := i + 2
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if end < len(words) {
			chunk += " "
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
