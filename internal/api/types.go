package api

// VideoMetadata is the backend's derived description of a video.
type VideoMetadata struct {
	Title           string `json:"title"`
	Channel         string `json:"channel"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Readiness reports how far the backend has come preparing a video's derived
// data. The wire shape is shared with the backend and kept bit-compatible.
type Readiness struct {
	TranscriptAvailable bool           `json:"transcript_available"`
	Metadata            *VideoMetadata `json:"metadata"`
	Summary             string         `json:"summary"`
}

// Complete reports whether every derived field is present.
func (r Readiness) Complete() bool {
	return r.TranscriptAvailable && r.Metadata != nil && r.Summary != ""
}

// ChatRequest is the payload of a chat turn. ConversationID is omitted when
// no conversation has been established yet; the backend tolerates that.
type ChatRequest struct {
	VideoID        string `json:"video_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ConversationCreated is the response to a conversation-create call.
type ConversationCreated struct {
	ConversationID string `json:"conversation_id"`
	VideoID        string `json:"video_id"`
}
