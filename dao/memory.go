package dao

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lms-agent/model"
)

type memorySession struct {
	history  []model.RequestRecord
	pending  *model.PendingConfirmation
	lastSeen time.Time
}

// MemoryStore is the single-process SessionStore.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]*memorySession
	idleTTL   time.Duration
	// retention keeps expired confirmations as tombstones past ExpiresAt.
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewMemoryStore(idleTTL time.Duration, logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*memorySession),
		idleTTL:   idleTTL,
		retention: ExpiredRetention,
		now:       time.Now,
		logger:    logger.With("component", "memory_store"),
	}
}

func (s *MemoryStore) session(id string) *memorySession {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &memorySession{}
		s.sessions[id] = sess
	}
	sess.lastSeen = s.now()
	return sess
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*model.ChatContext, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cc := &model.ChatContext{
		SessionID:        sessionID,
		PreviousRequests: append([]model.RequestRecord(nil), sess.history...),
	}
	if sess.pending != nil {
		p := *sess.pending
		cc.PendingConfirmation = &p
	}
	return cc, nil
}

func (s *MemoryStore) AppendRequest(_ context.Context, sessionID string, rec model.RequestRecord, limit int) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(sessionID)
	sess.history = append(sess.history, rec)
	if limit > 0 && len(sess.history) > limit {
		sess.history = append([]model.RequestRecord(nil), sess.history[len(sess.history)-limit:]...)
	}
	return nil
}

func (s *MemoryStore) PutPending(_ context.Context, sessionID string, p model.PendingConfirmation) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session(sessionID).pending = &p
	return nil
}

func (s *MemoryStore) PeekPending(_ context.Context, sessionID string) (*model.PendingConfirmation, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.pending == nil {
		return nil, nil
	}
	p := *sess.pending
	return &p, nil
}

func (s *MemoryStore) TakePending(_ context.Context, sessionID string) (*model.PendingConfirmation, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.pending == nil {
		return nil, nil
	}
	p := sess.pending
	sess.pending = nil
	return p, nil
}

// Sweep discards confirmations expired for longer than the retention window and
// sessions idle past the TTL. It runs under the store lock, so it never
// interleaves with TakePending.
func (s *MemoryStore) Sweep() (pending, sessions int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, sess := range s.sessions {
		if sess.pending != nil && now.Sub(sess.pending.ExpiresAt) > s.retention {
			sess.pending = nil
			pending++
		}
		if s.idleTTL > 0 && sess.pending == nil && now.Sub(sess.lastSeen) > s.idleTTL {
			delete(s.sessions, id)
			sessions++
		}
	}
	return pending, sessions
}

// Run sweeps every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if p, n := s.Sweep(); p+n > 0 {
				s.logger.Debug("swept sessions", "expired_confirmations", p, "idle_sessions", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *MemoryStore) Close() error { return nil }
