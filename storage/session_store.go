package storage

import (
	"context"
	"encoding/hex"
	"log"
	"sync"

	"github.com/google/uuid"
)

const (
	// SessionKey is the fixed storage key holding the session identifier
	SessionKey = "sessionId"

	sessionPrefix = "sess_"
)

// NewSessionID returns "sess_" followed by 64 random bits in hex.
// Bytes are taken from the random parts of a v4 UUID, skipping the version
// and variant bits.
func NewSessionID() string {
	id := uuid.New()
	b := make([]byte, 0, 8)
	b = append(b, id[0:6]...)
	b = append(b, id[10:12]...)
	return sessionPrefix + hex.EncodeToString(b)
}

// SessionStore owns the per-profile session identifier. Once an id is
// handed out it never changes for the lifetime of the store.
type SessionStore struct {
	storage  Storage
	newID    func() string
	id       string
	degraded bool
	mu       sync.Mutex
}

// NewSessionStore creates a session store over storage. A nil storage keeps
// the id in memory only.
func NewSessionStore(storage Storage) *SessionStore {
	return &SessionStore{
		storage: storage,
		newID:   NewSessionID,
	}
}

// GetOrCreateSessionID returns the stored session id, generating and
// persisting one on first use. Storage failures degrade to an in-memory id.
func (ss *SessionStore) GetOrCreateSessionID(ctx context.Context) string {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.id != "" {
		return ss.id
	}

	if id, ok := ss.lookup(ctx); ok {
		ss.id = id
		return id
	}

	id := ss.newID()
	if ss.storage != nil && !ss.degraded {
		if err := ss.storage.Set(ctx, SessionKey, id); err != nil {
			ss.degrade(err)
		}
	}
	ss.id = id
	log.Printf("🆔 [%s] New session created", shortID(id))
	return id
}

// SessionID returns the session id without creating one
func (ss *SessionStore) SessionID(ctx context.Context) (string, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.id != "" {
		return ss.id, true
	}
	id, ok := ss.lookup(ctx)
	if ok {
		ss.id = id
	}
	return id, ok
}

// Degraded reports whether the store fell back to memory
func (ss *SessionStore) Degraded() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.degraded
}

func (ss *SessionStore) lookup(ctx context.Context) (string, bool) {
	if ss.storage == nil || ss.degraded {
		return "", false
	}
	v, ok, err := ss.storage.Get(ctx, SessionKey)
	if err != nil {
		ss.degrade(err)
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (ss *SessionStore) degrade(err error) {
	if !ss.degraded {
		log.Printf("⚠️ Session storage unavailable, keeping session id in memory: %v", err)
	}
	ss.degraded = true
}

func shortID(id string) string {
	if len(id) > 13 {
		return id[:13]
	}
	return id
}
