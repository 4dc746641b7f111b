// Package session keeps the registry of open WebSocket pages.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/room4-2/leadchat/config"
	"github.com/room4-2/leadchat/metrics"
	"github.com/room4-2/leadchat/widget"
)

const (
	redisPagePrefix  = "leadchat:page:"
	redisActivePages = "leadchat:active_pages"
)

// ErrTooManySessions is returned when MaxSessions pages are already open
var ErrTooManySessions = errors.New("maximum sessions reached")

// Manager manages all open pages
type Manager struct {
	sessions map[string]*ClientSession
	mu       sync.RWMutex
	redis    *redis.Client
	config   *config.Config
	metrics  *metrics.Metrics

	// newPage returns the controller options shared by every page
	newPage func() widget.Options
}

// NewManager creates a page registry. redisClient is optional and only used
// for bookkeeping; newPage supplies each page's session store, agent client
// and capture device.
func NewManager(cfg *config.Config, redisClient *redis.Client, m *metrics.Metrics, newPage func() widget.Options) *Manager {
	return &Manager{
		sessions: make(map[string]*ClientSession),
		redis:    redisClient,
		config:   cfg,
		metrics:  m,
		newPage:  newPage,
	}
}

// CreateSession opens a page for clientConn
func (sm *Manager) CreateSession(ctx context.Context, clientConn *websocket.Conn) (*ClientSession, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.config.MaxSessions {
		return nil, ErrTooManySessions
	}

	var opts widget.Options
	if sm.newPage != nil {
		opts = sm.newPage()
	}
	if opts.MaxBuffer == 0 {
		opts.MaxBuffer = sm.config.MaxBufferSize
	}

	pageID := uuid.New().String()
	// Pages outlive the upgrade request, so they hang off a fresh context
	page := NewClientSession(context.Background(), pageID, clientConn, opts, sm.metrics, sm.config.KeepAlivePeriod)

	sm.storeSession(ctx, pageID, page)
	sm.metrics.PageOpened()
	return page, nil
}

// storeSession saves a page to memory and Redis
func (sm *Manager) storeSession(ctx context.Context, pageID string, page *ClientSession) {
	sm.sessions[pageID] = page

	if sm.redis != nil {
		key := redisPagePrefix + pageID
		if err := sm.redis.HSet(ctx, key, map[string]interface{}{
			"created_at":    page.CreatedAt.Format(time.RFC3339),
			"last_activity": page.LastActivity.Format(time.RFC3339),
			"status":        "active",
		}).Err(); err != nil {
			log.Printf("⚠️ [%s] Redis bookkeeping failed: %v", pageID[:8], err)
			return
		}
		sm.redis.SAdd(ctx, redisActivePages, pageID)
		sm.redis.Expire(ctx, key, sm.config.SessionTimeout)
	}
}

// GetSession retrieves a page by ID
func (sm *Manager) GetSession(pageID string) (*ClientSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	page, exists := sm.sessions[pageID]
	return page, exists
}

// RemoveSession closes and forgets a page
func (sm *Manager) RemoveSession(ctx context.Context, pageID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	page, exists := sm.sessions[pageID]
	if !exists {
		return nil
	}
	sm.drop(ctx, pageID, page)
	return nil
}

func (sm *Manager) drop(ctx context.Context, pageID string, page *ClientSession) {
	page.Close()
	delete(sm.sessions, pageID)
	sm.metrics.PageClosed()

	if sm.redis != nil {
		sm.redis.Del(ctx, redisPagePrefix+pageID)
		sm.redis.SRem(ctx, redisActivePages, pageID)
	}
}

// GetActiveSessionCount returns current page count
func (sm *Manager) GetActiveSessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CleanupInactiveSessions removes pages idle for longer than SessionTimeout
func (sm *Manager) CleanupInactiveSessions(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	for id, page := range sm.sessions {
		if now.Sub(page.IdleSince()) > sm.config.SessionTimeout {
			log.Printf("🧹 [%s] Closing idle page", id[:8])
			sm.drop(ctx, id, page)
		}
	}
}

// StartCleanupRoutine starts periodic cleanup of inactive pages
func (sm *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.CleanupInactiveSessions(ctx)
		}
	}
}

// Shutdown closes all pages
func (sm *Manager) Shutdown() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for id, page := range sm.sessions {
		sm.drop(ctx, id, page)
	}

	if sm.redis != nil {
		sm.redis.Close()
	}
}
