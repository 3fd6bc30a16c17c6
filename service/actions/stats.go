package actions

import (
	"context"
	"fmt"
	"strings"

	"lms-agent/model"
)

func GetEnrollmentStats(ctx context.Context, c *Caller, req Request) (*Outcome, error) {
	course, err := need(req, KeyCourse)
	if err != nil {
		return nil, err
	}
	stats, err := Call(ctx, c, "getEnrollmentStats", func(ctx context.Context, lms model.LmsClient) (*model.EnrollmentStats, error) {
		return lms.GetEnrollmentStats(ctx, course.ID)
	})
	if err != nil {
		return nil, err
	}

	name := stats.CourseName
	if name == "" {
		name = course.Display()
	}
	text := fmt.Sprintf("%s: %d enrolled, %d completed, %d in progress, %d not started (%.0f%% completion).",
		name, stats.Enrolled, stats.Completed, stats.InProgress, stats.NotStarted, stats.Completion*100)
	return &Outcome{Response: text, Data: stats}, nil
}

// Help lists what the caller's role may ask for.
func Help(_ context.Context, _ *Caller, req Request) (*Outcome, error) {
	var b strings.Builder
	b.WriteString("Here is what I can do for you:")
	for _, item := range req.Capabilities {
		if item.Intent == model.IntentHelp {
			continue
		}
		fmt.Fprintf(&b, "\n- %s", item.Description)
		if item.Example != "" {
			fmt.Fprintf(&b, " (for example %q)", item.Example)
		}
	}
	return &Outcome{
		Response: b.String(),
		Data:     map[string]any{"capabilities": req.Capabilities},
	}, nil
}
