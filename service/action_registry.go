package service

import (
	"lms-agent/model"
	"lms-agent/service/actions"
)

// ActionSpec describes how one intent is dispatched.
type ActionSpec struct {
	// Required entity keys; absent keys put the turn in awaiting_entities.
	Required []string
	// Defaults fill absent entities before the required check.
	Defaults map[string]string
	// Resolve maps entity keys to the directory kind they are looked up in.
	Resolve map[string]model.EntityKind
	// Check validates entities before any prompt or LMS call.
	Check   func(entities map[string]any) error
	Handler actions.Handler
	// Confirm renders the yes/no question for destructive intents.
	Confirm func(req actions.Request) string

	Description string
	Example     string
	// Failure is the only text shown when the LMS call fails.
	Failure string
}

// ActionRegistry is the intent -> action table.
type ActionRegistry map[model.Intent]ActionSpec

var Actions = ActionRegistry{
	model.IntentGetUserEnrollments: {
		Required:    []string{actions.KeyUser},
		Defaults:    map[string]string{actions.KeyUser: "me"},
		Resolve:     map[string]model.EntityKind{actions.KeyUser: model.EntityUser},
		Handler:     actions.GetUserEnrollments,
		Description: "Show a user's course enrollments",
		Example:     "show my enrollments",
		Failure:     "I couldn't load the enrollments right now. Please try again shortly.",
	},
	model.IntentEnrollUsers: {
		Required:    []string{actions.KeyUsers, actions.KeyCourse},
		Resolve:     map[string]model.EntityKind{actions.KeyUsers: model.EntityUser, actions.KeyCourse: model.EntityCourse},
		Check:       actions.CheckOptions,
		Handler:     actions.EnrollUsers,
		Confirm:     actions.ConfirmPrompt("enroll", actions.KeyUsers, "in"),
		Description: "Enroll users in a course",
		Example:     "enroll sarah@x.com in Excel Basics",
		Failure:     "The enrollment could not be completed. No confirmation was received from the LMS.",
	},
	model.IntentEnrollGroups: {
		Required:    []string{actions.KeyGroups, actions.KeyCourse},
		Resolve:     map[string]model.EntityKind{actions.KeyGroups: model.EntityGroup, actions.KeyCourse: model.EntityCourse},
		Check:       actions.CheckOptions,
		Handler:     actions.EnrollGroups,
		Confirm:     actions.ConfirmPrompt("enroll the groups", actions.KeyGroups, "in"),
		Description: "Enroll whole groups in a course",
		Example:     "enroll the Sales group in Onboarding",
		Failure:     "The group enrollment could not be completed. No confirmation was received from the LMS.",
	},
	model.IntentUnenrollUsers: {
		Required:    []string{actions.KeyUsers, actions.KeyCourse},
		Resolve:     map[string]model.EntityKind{actions.KeyUsers: model.EntityUser, actions.KeyCourse: model.EntityCourse},
		Handler:     actions.UnenrollUsers,
		Confirm:     actions.ConfirmPrompt("unenroll", actions.KeyUsers, "from"),
		Description: "Remove users from a course",
		Example:     "unenroll john@x.com from Excel Basics",
		Failure:     "The unenrollment could not be completed. No confirmation was received from the LMS.",
	},
	model.IntentUpdateEnrollments: {
		Required:    []string{actions.KeyUsers, actions.KeyCourse},
		Resolve:     map[string]model.EntityKind{actions.KeyUsers: model.EntityUser, actions.KeyCourse: model.EntityCourse},
		Check:       actions.CheckOptions,
		Handler:     actions.UpdateEnrollments,
		Confirm:     actions.ConfirmPrompt("update the enrollment of", actions.KeyUsers, "in"),
		Description: "Change status, due date or priority of enrollments",
		Example:     "set the due date for sarah@x.com in Excel Basics to 2026-12-01",
		Failure:     "The enrollment update could not be completed. No confirmation was received from the LMS.",
	},
	model.IntentGetEnrollmentStats: {
		Resolve:     map[string]model.EntityKind{actions.KeyCourse: model.EntityCourse},
		Required:    []string{actions.KeyCourse},
		Handler:     actions.GetEnrollmentStats,
		Description: "Show enrollment statistics for a course",
		Example:     "how many people finished Excel Basics?",
		Failure:     "I couldn't load the course statistics right now. Please try again shortly.",
	},
	model.IntentSearchUsers: {
		Required:    []string{actions.KeyQuery},
		Handler:     actions.Search(model.EntityUser),
		Description: "Find users by name or email",
		Example:     "find users named Sarah",
		Failure:     "The user search is unavailable right now. Please try again shortly.",
	},
	model.IntentSearchCourses: {
		Required:    []string{actions.KeyQuery},
		Handler:     actions.Search(model.EntityCourse),
		Description: "Search the course catalog",
		Example:     "find excel courses",
		Failure:     "The course search is unavailable right now. Please try again shortly.",
	},
	model.IntentSearchLearningPlans: {
		Required:    []string{actions.KeyQuery},
		Handler:     actions.Search(model.EntityLearningPlan),
		Description: "Search learning plans",
		Example:     "search learning plans about onboarding",
		Failure:     "The learning plan search is unavailable right now. Please try again shortly.",
	},
	model.IntentSearchSessions: {
		Required:    []string{actions.KeyQuery},
		Handler:     actions.Search(model.EntitySession),
		Description: "Search instructor-led sessions",
		Example:     "find sessions for first aid",
		Failure:     "The session search is unavailable right now. Please try again shortly.",
	},
	model.IntentSearchGroups: {
		Required:    []string{actions.KeyQuery},
		Handler:     actions.Search(model.EntityGroup),
		Description: "Find groups",
		Example:     "search groups sales",
		Failure:     "The group search is unavailable right now. Please try again shortly.",
	},
	model.IntentHelp: {
		Handler:     actions.Help,
		Description: "Explain what I can do for you",
		Example:     "help",
	},
}

// Capabilities describes the given intents in order, skipping any without an entry.
func (r ActionRegistry) Capabilities(intents []model.Intent, destructive func(model.Intent) bool) []model.Capability {
	out := make([]model.Capability, 0, len(intents))
	for _, in := range intents {
		spec, ok := r[in]
		if !ok {
			continue
		}
		out = append(out, model.Capability{
			Intent:      in,
			Description: spec.Description,
			Example:     spec.Example,
			Destructive: destructive(in),
		})
	}
	return out
}

// Missing returns the union of reported and absent required fields, in a stable order.
func (s ActionSpec) Missing(entities map[string]any, reported []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, key := range s.Required {
		if !actions.Present(entities, key) {
			seen[key] = true
			out = append(out, key)
		}
	}
	for _, key := range reported {
		if key == "" || seen[key] || actions.Present(entities, key) {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}
