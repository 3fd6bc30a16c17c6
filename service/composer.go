package service

import (
	"fmt"

	"lms-agent/model"
)

const maxActions = 3

type templateKey struct {
	intent model.Intent
	role   model.Role
}

// responseTemplates wrap a completed response. A role of "" is the intent-wide fallback.
var responseTemplates = map[templateKey]string{
	{model.IntentGetUserEnrollments, model.RoleUser}:        "Here is your learning so far. %s",
	{model.IntentGetUserEnrollments, model.RoleUserManager}: "Enrollment overview for your team member. %s",
	{model.IntentGetUserEnrollments, ""}:                    "%s",
	{model.IntentEnrollUsers, model.RoleSuperAdmin}:         "Done. %s",
	{model.IntentEnrollUsers, ""}:                           "%s The learners will see the course on their dashboard.",
	{model.IntentEnrollGroups, ""}:                          "%s Group members will see the course on their dashboard.",
	{model.IntentUnenrollUsers, ""}:                         "%s",
	{model.IntentUpdateEnrollments, ""}:                     "%s",
	{model.IntentGetEnrollmentStats, model.RoleUserManager}: "Team report. %s",
	{model.IntentGetEnrollmentStats, ""}:                    "%s",
	{model.IntentSearchCourses, model.RoleUser}:             "%s Ask me to show your enrollments to see where you stand.",
}

type actionTemplate struct {
	model.Action
	// requires is the intent the button triggers; buttons the role cannot use are dropped.
	requires model.Intent
}

var (
	confirmAction = actionTemplate{Action: model.Action{ID: "confirm", Label: "Yes, proceed", Kind: model.ActionPrimary, Action: "yes"}}
	cancelAction  = actionTemplate{Action: model.Action{ID: "cancel", Label: "No, cancel", Kind: model.ActionSecondary, Action: "no"}}
	helpAction    = actionTemplate{Action: model.Action{ID: "help", Label: "What can you do?", Kind: model.ActionSecondary, Action: "help"}, requires: model.IntentHelp}

	myEnrollmentsAction = actionTemplate{Action: model.Action{ID: "my_enrollments", Label: "Show my enrollments", Kind: model.ActionSecondary, Action: "show my enrollments"}, requires: model.IntentGetUserEnrollments}
	searchCoursesAction = actionTemplate{Action: model.Action{ID: "search_courses", Label: "Search courses", Kind: model.ActionSecondary, Action: "search courses"}, requires: model.IntentSearchCourses}
	searchUsersAction   = actionTemplate{Action: model.Action{ID: "search_users", Label: "Find a user", Kind: model.ActionSecondary, Action: "search users"}, requires: model.IntentSearchUsers}
	statsAction         = actionTemplate{Action: model.Action{ID: "enrollment_stats", Label: "Course statistics", Kind: model.ActionSecondary, Action: "show enrollment stats"}, requires: model.IntentGetEnrollmentStats}
	enrollAction        = actionTemplate{Action: model.Action{ID: "enroll_more", Label: "Enroll more users", Kind: model.ActionPrimary, Action: "enroll users"}, requires: model.IntentEnrollUsers}
	learningPlansAction = actionTemplate{Action: model.Action{ID: "learning_plans", Label: "Browse learning plans", Kind: model.ActionSecondary, Action: "search learning plans"}, requires: model.IntentSearchLearningPlans}
)

var intentActions = map[model.Intent][]actionTemplate{
	model.IntentGetUserEnrollments:  {searchCoursesAction, statsAction},
	model.IntentEnrollUsers:         {enrollAction, statsAction},
	model.IntentEnrollGroups:        {statsAction, enrollAction},
	model.IntentUnenrollUsers:       {statsAction, searchUsersAction},
	model.IntentUpdateEnrollments:   {statsAction, myEnrollmentsAction},
	model.IntentGetEnrollmentStats:  {searchUsersAction, enrollAction},
	model.IntentSearchUsers:         {myEnrollmentsAction, enrollAction},
	model.IntentSearchCourses:       {enrollAction, myEnrollmentsAction},
	model.IntentSearchLearningPlans: {searchCoursesAction},
	model.IntentSearchSessions:      {searchCoursesAction},
	model.IntentSearchGroups:        {searchUsersAction},
	model.IntentError:               {helpAction},
}

var roleDefaults = map[model.Role][]actionTemplate{
	model.RoleSuperAdmin:  {enrollAction, statsAction, helpAction},
	model.RolePowerUser:   {enrollAction, searchCoursesAction, helpAction},
	model.RoleUserManager: {statsAction, searchUsersAction, helpAction},
	model.RoleUser:        {myEnrollmentsAction, learningPlansAction, helpAction},
}

// Composer renders the final text and follow-up actions. Output depends only on
// the result and the role.
type Composer struct {
	gate *PermissionGate
}

func NewComposer(gate *PermissionGate) *Composer {
	return &Composer{gate: gate}
}

// Compose returns a new result; res is not modified.
func (c *Composer) Compose(res *model.ChatResult, role model.Role) *model.ChatResult {
	out := *res
	out.Meta.FunctionsCalled = append([]string{}, res.Meta.FunctionsCalled...)

	if res.State == model.StateCompleted {
		out.Response = render(res.Intent, role, res.Response)
	}
	out.Actions = c.actions(res, role)
	return &out
}

func render(intent model.Intent, role model.Role, body string) string {
	if tpl, ok := responseTemplates[templateKey{intent, role}]; ok {
		return fmt.Sprintf(tpl, body)
	}
	if tpl, ok := responseTemplates[templateKey{intent, ""}]; ok {
		return fmt.Sprintf(tpl, body)
	}
	return body
}

func (c *Composer) actions(res *model.ChatResult, role model.Role) []model.Action {
	var specific []actionTemplate
	if res.State == model.StateAwaitingConfirmation {
		specific = []actionTemplate{confirmAction, cancelAction}
	} else {
		specific = intentActions[res.Intent]
	}

	out := make([]model.Action, 0, maxActions)
	seen := make(map[string]bool, maxActions)
	add := func(t actionTemplate) {
		if len(out) >= maxActions || seen[t.ID] {
			return
		}
		if t.requires != "" && !c.gate.Authorize(role, t.requires) {
			return
		}
		seen[t.ID] = true
		out = append(out, t.Action)
	}

	n := 0
	for _, t := range specific {
		if n == 2 {
			break
		}
		before := len(out)
		add(t)
		if len(out) > before {
			n++
		}
	}
	defaults, ok := roleDefaults[role]
	if !ok {
		defaults = roleDefaults[model.RoleUser]
	}
	for _, t := range defaults {
		add(t)
	}
	return out
}
