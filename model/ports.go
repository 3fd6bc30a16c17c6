package model

import "context"

// IntentClassifier turns a sanitized message into an intent with entities.
// Implementations must be idempotent for identical input.
type IntentClassifier interface {
	Classify(ctx context.Context, message string, cc *ChatContext) (*Classification, error)
}

// LmsClient is the LMS capability consumed by the dispatcher. Every method fails
// with an error wrapping ErrUpstream on non-2xx responses or network faults.
type LmsClient interface {
	GetUserEnrollments(ctx context.Context, userID string) ([]Enrollment, error)
	EnrollUsers(ctx context.Context, userIDs []string, courseID string, opts EnrollOptions) (*EnrollmentResult, error)
	EnrollGroups(ctx context.Context, groupIDs []string, courseID string, opts EnrollOptions) (*EnrollmentResult, error)
	UnenrollUsers(ctx context.Context, userIDs []string, courseID string) (*EnrollmentResult, error)
	UpdateEnrollments(ctx context.Context, userIDs []string, courseID string, opts EnrollOptions) (*EnrollmentResult, error)
	GetEnrollmentStats(ctx context.Context, courseID string) (*EnrollmentStats, error)

	SearchUsers(ctx context.Context, query string) ([]Entity, error)
	SearchCourses(ctx context.Context, query string) ([]Entity, error)
	SearchLearningPlans(ctx context.Context, query string) ([]Entity, error)
	SearchSessions(ctx context.Context, query string) ([]Entity, error)
	SearchGroups(ctx context.Context, query string) ([]Entity, error)
}
