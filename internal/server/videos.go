package server

import (
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clipnote/clipnote/internal/api"
	"github.com/clipnote/clipnote/internal/server/conversation"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// videoRegistry simulates asynchronous video preparation. The first status
// request for an id starts its clock; derived data then appears in stages,
// one preparation step apart.
type videoRegistry struct {
	step time.Duration

	mu        sync.Mutex
	firstSeen map[string]time.Time
}

func newVideoRegistry(step time.Duration) *videoRegistry {
	return &videoRegistry{step: step, firstSeen: make(map[string]time.Time)}
}

func (r *videoRegistry) readiness(videoID string) api.Readiness {
	r.mu.Lock()
	seen, ok := r.firstSeen[videoID]
	if !ok {
		seen = time.Now()
		r.firstSeen[videoID] = seen
	}
	r.mu.Unlock()

	elapsed := time.Since(seen)
	var out api.Readiness
	if elapsed >= r.step {
		out.TranscriptAvailable = true
	}
	if elapsed >= 2*r.step {
		out.Metadata = &api.VideoMetadata{
			Title:           "Video " + videoID,
			Channel:         "clipnote",
			DurationSeconds: 600,
		}
	}
	if elapsed >= 3*r.step {
		out.Summary = "An overview of the key moments in this video."
	}
	return out
}

// ready reports whether the video finished preparing. Chat refuses turns
// until then.
func (r *videoRegistry) ready(videoID string) bool {
	return r.readiness(videoID).Complete()
}

type VideosHandler struct {
	Videos        *videoRegistry
	Conversations conversation.Store
}

func (h *VideosHandler) Register(g *echo.Group) {
	g.GET("/videos/:id/status", h.status)
	g.POST("/videos/:id/conversations", h.createConversation)
}

func (h *VideosHandler) status(c echo.Context) error {
	videoID := c.Param("id")
	if !videoIDPattern.MatchString(videoID) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid video id")
	}
	statusChecks.Inc()
	return c.JSON(http.StatusOK, h.Videos.readiness(videoID))
}

func (h *VideosHandler) createConversation(c echo.Context) error {
	videoID := c.Param("id")
	if !videoIDPattern.MatchString(videoID) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid video id")
	}
	conv, err := h.Conversations.Create(c.Request().Context(), videoID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, api.ConversationCreated{
		ConversationID: conv.ID,
		VideoID:        conv.VideoID,
	})
}
