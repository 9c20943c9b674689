// Package ratelimit classifies quota-exhaustion responses. Classification is
// driven by the caller's identity, not by sniffing response content: guests
// get the register call-to-action, authenticated users get the cooldown the
// backend reported.
package ratelimit

import (
	"encoding/json"
	"time"

	"github.com/clipnote/clipnote/internal/auth"
)

// fallbackReset is used when an authenticated 429 payload is missing or
// malformed. It is deliberately conservative and never zero: a zero cooldown
// would invite an immediate retry against an already-exhausted quota.
const fallbackReset = 24 * time.Hour

type Tier int

const (
	// TierGuest marks the anonymous quota: the remedy is registering, not waiting.
	TierGuest Tier = iota
	// TierRegistered marks the authenticated quota with a server-supplied cooldown.
	TierRegistered
)

// Limit describes a quota block to be surfaced as a dedicated prompt, never
// mixed into the message list.
type Limit struct {
	Tier    Tier
	ResetIn time.Duration // meaningful for TierRegistered only
}

// Classify maps a 429 response body to a Limit for the given identity.
func Classify(identity auth.Identity, body []byte) Limit {
	if identity.Kind != auth.KindAuthenticated {
		return Limit{Tier: TierGuest}
	}
	return Limit{Tier: TierRegistered, ResetIn: resetDuration(body)}
}

func resetDuration(body []byte) time.Duration {
	var payload struct {
		Error struct {
			Details struct {
				ResetInSeconds int `json:"reset_in_seconds"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallbackReset
	}
	if payload.Error.Details.ResetInSeconds <= 0 {
		return fallbackReset
	}
	return time.Duration(payload.Error.Details.ResetInSeconds) * time.Second
}
