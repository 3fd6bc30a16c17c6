package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lms-agent/config"
	"lms-agent/model"
)

func TestAuthorizeMatchesTable(t *testing.T) {
	table := config.Default().Permissions
	gate := NewPermissionGate(table)

	for _, role := range model.Roles {
		allowed := make(map[model.Intent]bool)
		for _, in := range table[role] {
			allowed[in] = true
		}
		for _, in := range model.Intents {
			want := allowed[in] || in == model.IntentHelp || in == model.IntentError
			assert.Equal(t, want, gate.Authorize(role, in), "role=%s intent=%s", role, in)
		}
	}
}

func TestAuthorizeHelpAndErrorForAnyRole(t *testing.T) {
	gate := NewPermissionGate(nil)
	for _, role := range append(model.Roles, "anonymous") {
		assert.True(t, gate.Authorize(role, model.IntentHelp))
		assert.True(t, gate.Authorize(role, model.IntentError))
		assert.False(t, gate.Authorize(role, model.IntentEnrollUsers))
	}
}

func TestAllowedListsCatalogOrder(t *testing.T) {
	gate := NewPermissionGate(map[model.Role][]model.Intent{
		model.RoleUser: {model.IntentSearchCourses, model.IntentGetUserEnrollments, model.IntentSearchCourses},
	})

	assert.Equal(t, []model.Intent{
		model.IntentGetUserEnrollments,
		model.IntentSearchCourses,
		model.IntentHelp,
	}, gate.Allowed(model.RoleUser))
}

func TestGateIgnoresLaterTableMutation(t *testing.T) {
	table := map[model.Role][]model.Intent{model.RoleUser: {model.IntentSearchCourses}}
	gate := NewPermissionGate(table)
	table[model.RoleUser] = append(table[model.RoleUser], model.IntentUnenrollUsers)

	assert.False(t, gate.Authorize(model.RoleUser, model.IntentUnenrollUsers))
}
