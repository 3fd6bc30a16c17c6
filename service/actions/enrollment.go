package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"lms-agent/model"
)

const maxListed = 5

func GetUserEnrollments(ctx context.Context, c *Caller, req Request) (*Outcome, error) {
	user, err := need(req, KeyUser)
	if err != nil {
		return nil, err
	}
	list, err := Call(ctx, c, "getUserEnrollments", func(ctx context.Context, lms model.LmsClient) ([]model.Enrollment, error) {
		return lms.GetUserEnrollments(ctx, user.ID)
	})
	if err != nil {
		return nil, err
	}

	data := map[string]any{"user": user, "enrollments": list}
	if len(list) == 0 {
		return &Outcome{Response: user.Display() + " has no enrollments.", Data: data}, nil
	}

	lines := make([]string, 0, maxListed)
	for _, e := range list[:min(len(list), maxListed)] {
		lines = append(lines, fmt.Sprintf("%s (%s, %.0f%%)", e.CourseName, e.Status, e.Progress*100))
	}
	text := fmt.Sprintf("%s has %d enrollment%s: %s", user.Display(), len(list), plural(len(list)), strings.Join(lines, "; "))
	if len(list) > maxListed {
		text += fmt.Sprintf("; and %d more", len(list)-maxListed)
	}
	return &Outcome{Response: text + ".", Data: data}, nil
}

func EnrollUsers(ctx context.Context, c *Caller, req Request) (*Outcome, error) {
	return bulk(ctx, c, req, KeyUsers, "enrollUsers", "Enrolled", "in",
		func(ctx context.Context, lms model.LmsClient, ids []string, course string, opts model.EnrollOptions) (*model.EnrollmentResult, error) {
			return lms.EnrollUsers(ctx, ids, course, opts)
		})
}

func EnrollGroups(ctx context.Context, c *Caller, req Request) (*Outcome, error) {
	return bulk(ctx, c, req, KeyGroups, "enrollGroups", "Enrolled", "in",
		func(ctx context.Context, lms model.LmsClient, ids []string, course string, opts model.EnrollOptions) (*model.EnrollmentResult, error) {
			return lms.EnrollGroups(ctx, ids, course, opts)
		})
}

func UnenrollUsers(ctx context.Context, c *Caller, req Request) (*Outcome, error) {
	return bulk(ctx, c, req, KeyUsers, "unenrollUsers", "Unenrolled", "from",
		func(ctx context.Context, lms model.LmsClient, ids []string, course string, _ model.EnrollOptions) (*model.EnrollmentResult, error) {
			return lms.UnenrollUsers(ctx, ids, course)
		})
}

func UpdateEnrollments(ctx context.Context, c *Caller, req Request) (*Outcome, error) {
	return bulk(ctx, c, req, KeyUsers, "updateEnrollments", "Updated the enrollment of", "in",
		func(ctx context.Context, lms model.LmsClient, ids []string, course string, opts model.EnrollOptions) (*model.EnrollmentResult, error) {
			return lms.UpdateEnrollments(ctx, ids, course, opts)
		})
}

type bulkFunc func(ctx context.Context, lms model.LmsClient, ids []string, courseID string, opts model.EnrollOptions) (*model.EnrollmentResult, error)

func bulk(ctx context.Context, c *Caller, req Request, targetKey, name, verb, prep string, fn bulkFunc) (*Outcome, error) {
	targets, err := needAll(req, targetKey)
	if err != nil {
		return nil, err
	}
	course, err := need(req, KeyCourse)
	if err != nil {
		return nil, err
	}
	opts, err := Options(req.Entities)
	if err != nil {
		return nil, err
	}

	res, err := Call(ctx, c, name, func(ctx context.Context, lms model.LmsClient) (*model.EnrollmentResult, error) {
		return fn(ctx, lms, IDs(targets), course.ID, opts)
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &model.EnrollmentResult{}
	}
	return &Outcome{
		Response: summarize(res, targets, course, verb, prep),
		Data:     map[string]any{"course": course, "targets": targets, "result": res},
	}, nil
}

// summarize reports per-target outcome. Failure reasons from the LMS are not echoed.
func summarize(res *model.EnrollmentResult, targets []model.Entity, course model.Entity, verb, prep string) string {
	byID := make(map[string]model.Entity, len(targets))
	for _, t := range targets {
		byID[t.ID] = t
	}
	pick := func(ids []string) []model.Entity {
		out := make([]model.Entity, 0, len(ids))
		for _, id := range ids {
			if e, ok := byID[id]; ok {
				out = append(out, e)
			} else {
				out = append(out, model.Entity{ID: id})
			}
		}
		return out
	}

	failedIDs := make([]string, 0, len(res.Failed))
	for id := range res.Failed {
		failedIDs = append(failedIDs, id)
	}
	sort.Strings(failedIDs)

	var b strings.Builder
	if len(res.Succeeded) > 0 {
		fmt.Fprintf(&b, "%s %s %s %s.", verb, Names(pick(res.Succeeded)), prep, course.Display())
	}
	if len(failedIDs) > 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "The LMS did not apply the change for %s.", Names(pick(failedIDs)))
	}
	if b.Len() == 0 {
		fmt.Fprintf(&b, "No changes were made to %s.", course.Display())
	}
	return b.String()
}

// ConfirmPrompt builds the yes/no question for a destructive action.
func ConfirmPrompt(verb, targetKey, prep string) func(Request) string {
	return func(req Request) string {
		course, _ := first(req.Resolved, KeyCourse)
		return fmt.Sprintf("You are about to %s %s %s %s. Reply yes to confirm or no to cancel.",
			verb, Names(req.Resolved[targetKey]), prep, course.Display())
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
