package actions

import (
	"context"
	"fmt"
	"strings"

	"lms-agent/model"
)

const maxSearchListed = 10

type searchFunc func(ctx context.Context, lms model.LmsClient, query string) ([]model.Entity, error)

type directory struct {
	name string
	noun string
	fn   searchFunc
}

var directories = map[model.EntityKind]directory{
	model.EntityUser: {"searchUsers", "user", func(ctx context.Context, lms model.LmsClient, q string) ([]model.Entity, error) {
		return lms.SearchUsers(ctx, q)
	}},
	model.EntityCourse: {"searchCourses", "course", func(ctx context.Context, lms model.LmsClient, q string) ([]model.Entity, error) {
		return lms.SearchCourses(ctx, q)
	}},
	model.EntityLearningPlan: {"searchLearningPlans", "learning plan", func(ctx context.Context, lms model.LmsClient, q string) ([]model.Entity, error) {
		return lms.SearchLearningPlans(ctx, q)
	}},
	model.EntitySession: {"searchSessions", "session", func(ctx context.Context, lms model.LmsClient, q string) ([]model.Entity, error) {
		return lms.SearchSessions(ctx, q)
	}},
	model.EntityGroup: {"searchGroups", "group", func(ctx context.Context, lms model.LmsClient, q string) ([]model.Entity, error) {
		return lms.SearchGroups(ctx, q)
	}},
}

// Lookup runs the directory search for kind. The resolver uses it before any action runs.
func Lookup(ctx context.Context, c *Caller, kind model.EntityKind, query string) ([]model.Entity, error) {
	dir, ok := directories[kind]
	if !ok {
		return nil, fmt.Errorf("no directory search for %q", kind)
	}
	return Call(ctx, c, dir.name, func(ctx context.Context, lms model.LmsClient) ([]model.Entity, error) {
		return dir.fn(ctx, lms, query)
	})
}

// Search returns a handler listing directory records of kind that match the query entity.
func Search(kind model.EntityKind) Handler {
	noun := directories[kind].noun
	return func(ctx context.Context, c *Caller, req Request) (*Outcome, error) {
		query := String(req.Entities, KeyQuery)
		found, err := Lookup(ctx, c, kind, query)
		if err != nil {
			return nil, err
		}

		data := map[string]any{"query": query, "results": found, "total": len(found)}
		if len(found) == 0 {
			return &Outcome{Response: fmt.Sprintf("No %ss match %q.", noun, query), Data: data}, nil
		}

		shown := found[:min(len(found), maxSearchListed)]
		labels := make([]string, len(shown))
		for i, e := range shown {
			labels[i] = fmt.Sprintf("%s (#%s)", e.Display(), e.ID)
		}
		text := fmt.Sprintf("Found %d %s%s matching %q: %s", len(found), noun, plural(len(found)), query, strings.Join(labels, ", "))
		if len(found) > len(shown) {
			text += fmt.Sprintf(" and %d more", len(found)-len(shown))
		}
		return &Outcome{Response: text + ".", Data: data}, nil
	}
}
