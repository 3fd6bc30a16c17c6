// Package lmstest provides an in-memory LmsClient for tests.
package lmstest

import (
	"context"
	"strings"
	"sync"
	"time"

	"lms-agent/model"
)

// Fake is a directory-backed LmsClient that records every call.
type Fake struct {
	Users         []model.Entity
	Courses       []model.Entity
	Groups        []model.Entity
	LearningPlans []model.Entity
	Sessions      []model.Entity
	Enrollments   map[string][]model.Enrollment
	Stats         map[string]*model.EnrollmentStats

	// Errs fails the named method, e.g. "UnenrollUsers".
	Errs map[string]error
	// Delay blocks every call until it elapses or ctx is done.
	Delay time.Duration

	mu    sync.Mutex
	calls []string
}

var mutating = map[string]bool{
	"EnrollUsers":       true,
	"EnrollGroups":      true,
	"UnenrollUsers":     true,
	"UpdateEnrollments": true,
}

func (f *Fake) enter(ctx context.Context, name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	err := f.Errs[name]
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

// Mutations counts calls that change LMS state.
func (f *Fake) Mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if mutating[c] {
			n++
		}
	}
	return n
}

func (f *Fake) GetUserEnrollments(ctx context.Context, userID string) ([]model.Enrollment, error) {
	if err := f.enter(ctx, "GetUserEnrollments"); err != nil {
		return nil, err
	}
	return f.Enrollments[userID], nil
}

func (f *Fake) EnrollUsers(ctx context.Context, userIDs []string, _ string, _ model.EnrollOptions) (*model.EnrollmentResult, error) {
	if err := f.enter(ctx, "EnrollUsers"); err != nil {
		return nil, err
	}
	return &model.EnrollmentResult{Succeeded: userIDs}, nil
}

func (f *Fake) EnrollGroups(ctx context.Context, groupIDs []string, _ string, _ model.EnrollOptions) (*model.EnrollmentResult, error) {
	if err := f.enter(ctx, "EnrollGroups"); err != nil {
		return nil, err
	}
	return &model.EnrollmentResult{Succeeded: groupIDs}, nil
}

func (f *Fake) UnenrollUsers(ctx context.Context, userIDs []string, _ string) (*model.EnrollmentResult, error) {
	if err := f.enter(ctx, "UnenrollUsers"); err != nil {
		return nil, err
	}
	return &model.EnrollmentResult{Succeeded: userIDs}, nil
}

func (f *Fake) UpdateEnrollments(ctx context.Context, userIDs []string, _ string, _ model.EnrollOptions) (*model.EnrollmentResult, error) {
	if err := f.enter(ctx, "UpdateEnrollments"); err != nil {
		return nil, err
	}
	return &model.EnrollmentResult{Succeeded: userIDs}, nil
}

func (f *Fake) GetEnrollmentStats(ctx context.Context, courseID string) (*model.EnrollmentStats, error) {
	if err := f.enter(ctx, "GetEnrollmentStats"); err != nil {
		return nil, err
	}
	if s, ok := f.Stats[courseID]; ok {
		return s, nil
	}
	return &model.EnrollmentStats{CourseID: courseID}, nil
}

func (f *Fake) SearchUsers(ctx context.Context, query string) ([]model.Entity, error) {
	if err := f.enter(ctx, "SearchUsers"); err != nil {
		return nil, err
	}
	return match(f.Users, model.EntityUser, query), nil
}

func (f *Fake) SearchCourses(ctx context.Context, query string) ([]model.Entity, error) {
	if err := f.enter(ctx, "SearchCourses"); err != nil {
		return nil, err
	}
	return match(f.Courses, model.EntityCourse, query), nil
}

func (f *Fake) SearchLearningPlans(ctx context.Context, query string) ([]model.Entity, error) {
	if err := f.enter(ctx, "SearchLearningPlans"); err != nil {
		return nil, err
	}
	return match(f.LearningPlans, model.EntityLearningPlan, query), nil
}

func (f *Fake) SearchSessions(ctx context.Context, query string) ([]model.Entity, error) {
	if err := f.enter(ctx, "SearchSessions"); err != nil {
		return nil, err
	}
	return match(f.Sessions, model.EntitySession, query), nil
}

func (f *Fake) SearchGroups(ctx context.Context, query string) ([]model.Entity, error) {
	if err := f.enter(ctx, "SearchGroups"); err != nil {
		return nil, err
	}
	return match(f.Groups, model.EntityGroup, query), nil
}

// match returns entries whose id equals the query or that share at least one
// query token with their id, name or email.
func match(all []model.Entity, kind model.EntityKind, query string) []model.Entity {
	tokens := strings.Fields(strings.ToLower(query))
	var out []model.Entity
	for _, e := range all {
		if e.ID == strings.TrimSpace(query) {
			e.Kind = kind
			out = append(out, e)
			continue
		}
		hay := strings.ToLower(e.ID + " " + e.Name + " " + e.Email)
		for _, tok := range tokens {
			if len(tok) >= 2 && strings.Contains(hay, tok) {
				e.Kind = kind
				out = append(out, e)
				break
			}
		}
	}
	return out
}

var _ model.LmsClient = (*Fake)(nil)
