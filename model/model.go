package model

import (
	"sort"
	"time"
)

type Role string

const (
	RoleSuperAdmin  Role = "superadmin"
	RolePowerUser   Role = "power_user"
	RoleUserManager Role = "user_manager"
	RoleUser        Role = "user"
)

// Roles lists every known role, most privileged first.
var Roles = []Role{RoleSuperAdmin, RolePowerUser, RoleUserManager, RoleUser}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

type Intent string

const (
	IntentGetUserEnrollments  Intent = "get_user_enrollments"
	IntentEnrollUsers         Intent = "enroll_users"
	IntentEnrollGroups        Intent = "enroll_groups"
	IntentUnenrollUsers       Intent = "unenroll_users"
	IntentUpdateEnrollments   Intent = "update_enrollments"
	IntentGetEnrollmentStats  Intent = "get_enrollment_stats"
	IntentSearchUsers         Intent = "search_users"
	IntentSearchCourses       Intent = "search_courses"
	IntentSearchLearningPlans Intent = "search_learning_plans"
	IntentSearchSessions      Intent = "search_sessions"
	IntentSearchGroups        Intent = "search_groups"
	IntentHelp                Intent = "help"
	IntentError               Intent = "error"
)

// Intents is the closed intent catalog.
var Intents = []Intent{
	IntentGetUserEnrollments,
	IntentEnrollUsers,
	IntentEnrollGroups,
	IntentUnenrollUsers,
	IntentUpdateEnrollments,
	IntentGetEnrollmentStats,
	IntentSearchUsers,
	IntentSearchCourses,
	IntentSearchLearningPlans,
	IntentSearchSessions,
	IntentSearchGroups,
	IntentHelp,
	IntentError,
}

// ParseIntent maps raw classifier output onto the catalog. Anything unknown is IntentError.
func ParseIntent(s string) Intent {
	for _, in := range Intents {
		if string(in) == s {
			return in
		}
	}
	return IntentError
}

// Identity is immutable for the lifetime of one request.
type Identity struct {
	ClientID string `json:"client_id"`
	Role     Role   `json:"role"`
}

// Key is the rate-limit bucket key for the identity.
func (i Identity) Key() string {
	return i.ClientID + "|" + string(i.Role)
}

type ChatRequest struct {
	Message   string `json:"message" validate:"required,notblank"`
	UserID    string `json:"userId,omitempty" validate:"omitempty,max=128"`
	UserRole  string `json:"userRole,omitempty" validate:"omitempty,oneof=superadmin power_user user_manager user"`
	SessionID string `json:"sessionId,omitempty" validate:"omitempty,max=128"`
}

type DispatchState string

const (
	StateAwaitingEntities     DispatchState = "awaiting_entities"
	StateAwaitingConfirmation DispatchState = "awaiting_confirmation"
	StateExecuting            DispatchState = "executing"
	StateCompleted            DispatchState = "completed"
	StateFailed               DispatchState = "failed"
)

type ActionKind string

const (
	ActionPrimary   ActionKind = "primary"
	ActionSecondary ActionKind = "secondary"
)

// Action is a suggested follow-up rendered by the client as a button.
type Action struct {
	ID     string     `json:"id"`
	Label  string     `json:"label"`
	Kind   ActionKind `json:"kind"`
	Action string     `json:"action"`
}

type Meta struct {
	ProcessingTimeMs int64     `json:"processingTimeMs"`
	Timestamp        time.Time `json:"timestamp"`
	FunctionsCalled  []string  `json:"functionsCalled"`
	RequestID        string    `json:"requestId,omitempty"`

	// Cause keeps the raw upstream failure for diagnostics; never serialised.
	Cause string `json:"-"`
}

// ChatResult is produced once per request and not mutated after it is returned.
type ChatResult struct {
	Intent   Intent        `json:"intent"`
	Success  bool          `json:"success"`
	Response string        `json:"response"`
	State    DispatchState `json:"state,omitempty"`
	Data     any           `json:"data,omitempty"`
	Actions  []Action      `json:"actions"`
	Meta     Meta          `json:"meta"`
}

// RequestRecord is one entry of a session's bounded request log.
type RequestRecord struct {
	Intent   Intent              `json:"intent"`
	Entities map[string]any      `json:"entities,omitempty"`
	Resolved map[string][]Entity `json:"resolved,omitempty"`
	At       time.Time           `json:"at"`
}

type PendingConfirmation struct {
	ActionID    string              `json:"action_id"`
	Intent      Intent              `json:"intent"`
	Entities    map[string]any      `json:"entities"`
	Resolved    map[string][]Entity `json:"resolved,omitempty"`
	RequestedBy string              `json:"requested_by,omitempty"`
	RequestedAt time.Time           `json:"requested_at"`
	ExpiresAt   time.Time           `json:"expires_at"`
}

func (p *PendingConfirmation) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// ChatContext is owned by one conversation session.
type ChatContext struct {
	Role                Role                 `json:"role"`
	UserID              string               `json:"user_id"`
	SessionID           string               `json:"session_id"`
	PreviousRequests    []RequestRecord      `json:"previous_requests,omitempty"`
	PendingConfirmation *PendingConfirmation `json:"pending_confirmation,omitempty"`
}

// LastOfKind returns the most recently resolved entities of kind, newest request first.
func (c *ChatContext) LastOfKind(kind EntityKind) []Entity {
	for i := len(c.PreviousRequests) - 1; i >= 0; i-- {
		rec := c.PreviousRequests[i]
		keys := make([]string, 0, len(rec.Resolved))
		for k := range rec.Resolved {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if ents := rec.Resolved[k]; len(ents) > 0 && ents[0].Kind == kind {
				return ents
			}
		}
	}
	return nil
}

// Classification is what the intent classifier returns for one message.
type Classification struct {
	Intent        Intent         `json:"intent"`
	Entities      map[string]any `json:"entities"`
	Confidence    float64        `json:"confidence"`
	MissingFields []string       `json:"missing_fields,omitempty"`
}

// Capability describes one intent a role may invoke.
type Capability struct {
	Intent      Intent `json:"intent"`
	Description string `json:"description"`
	Example     string `json:"example,omitempty"`
	Destructive bool   `json:"destructive,omitempty"`
}
