package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned when the backend rejects the presented
// credential. The client has already evicted the stored credential by the
// time a caller sees this.
var ErrUnauthorized = errors.New("unauthorized")

// QuotaError is a 429 from the backend. The raw body is kept so the rate
// limit handler can classify it against the caller's identity.
type QuotaError struct {
	Body []byte
}

func (e *QuotaError) Error() string { return "quota exceeded" }

// RequestError is any other non-success response, carrying a human-readable
// message derived from the body where possible.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

// errorMessage extracts a displayable message from an error body. The
// backend emits either {"error": "text"}, {"error": {"message": "text"}} or
// {"message": "text"}; anything else falls back to the status phrase.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Error) > 0 {
			var text string
			if json.Unmarshal(payload.Error, &text) == nil && strings.TrimSpace(text) != "" {
				return text
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(payload.Error, &nested) == nil && strings.TrimSpace(nested.Message) != "" {
				return nested.Message
			}
		}
		if strings.TrimSpace(payload.Message) != "" {
			return payload.Message
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}
