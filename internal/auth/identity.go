package auth

import (
	"sync"

	"github.com/google/uuid"

	"github.com/clipnote/clipnote/internal/store"
)

// guestSessionKey is the session-scoped slot holding the anonymous identity.
const guestSessionKey = "guest_session_id"

// Kind discriminates the two identity variants. Resolution always yields
// exactly one of them.
type Kind int

const (
	KindGuest Kind = iota
	KindAuthenticated
)

// Identity is the actor attached to every backend request.
type Identity struct {
	Kind       Kind
	Credential string // set when Kind == KindAuthenticated
	GuestID    string // set when Kind == KindGuest
}

// Headers returns the identity header set for a backend request.
func (id Identity) Headers() map[string]string {
	if id.Kind == KindAuthenticated {
		return map[string]string{"Authorization": "Bearer " + id.Credential}
	}
	return map[string]string{"X-Guest-Session-ID": id.GuestID}
}

// Resolver decides whether the current actor is an authenticated user or an
// anonymous guest. Resolution may mutate storage (evicting an expired
// credential, minting a guest id) but never performs network I/O.
type Resolver struct {
	mu      sync.Mutex
	creds   *Credentials
	session store.Store
}

// NewResolver builds a Resolver over the durable credential store and the
// session-scoped guest store.
func NewResolver(creds *Credentials, session store.Store) *Resolver {
	return &Resolver{creds: creds, session: session}
}

// Resolve returns the current identity, minting and persisting a guest
// session id on first anonymous use. The mutex makes minting idempotent under
// concurrent callers: all of them converge on one id.
func (r *Resolver) Resolve() Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token, ok := r.creds.Token(); ok {
		return Identity{Kind: KindAuthenticated, Credential: token}
	}
	if id, ok := r.session.Get(guestSessionKey); ok && id != "" {
		return Identity{Kind: KindGuest, GuestID: id}
	}
	id := uuid.NewString()
	r.session.Set(guestSessionKey, id)
	return Identity{Kind: KindGuest, GuestID: id}
}

// Invalidate drops the stored credential, downgrading subsequent resolutions
// to guest. Used on 401 responses and logout.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds.Invalidate()
}

// SaveCredential stores a fresh login token.
func (r *Resolver) SaveCredential(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds.Save(token)
}
