package dao

import (
	"context"
	"errors"
	"time"

	"lms-agent/model"
)

var (
	ErrInvalidParam   = errors.New("invalid parameter")
	ErrInvalidSession = errors.New("invalid session")
)

// ExpiredRetention is how long a lapsed confirmation stays in the store after
// ExpiresAt, so a late yes/no is answered as expired instead of as nothing pending.
const ExpiredRetention = 15 * time.Minute

// SessionStore keeps per-session conversation state. Pending confirmations are
// consumed with TakePending, which must be atomic: of any number of concurrent
// callers at most one receives the record. Expired records stay readable for
// ExpiredRetention; callers check Expired before acting on them.
type SessionStore interface {
	// Load returns the session context or nil when the session is unknown.
	Load(ctx context.Context, sessionID string) (*model.ChatContext, error)
	AppendRequest(ctx context.Context, sessionID string, rec model.RequestRecord, limit int) error
	PutPending(ctx context.Context, sessionID string, p model.PendingConfirmation) error
	PeekPending(ctx context.Context, sessionID string) (*model.PendingConfirmation, error)
	TakePending(ctx context.Context, sessionID string) (*model.PendingConfirmation, error)
	Close() error
}

func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return errors.Join(ErrInvalidParam, errors.New("sessionID is empty"))
	}
	return nil
}
