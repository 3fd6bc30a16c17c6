package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-agent/internal/logger"
	"lms-agent/model"
	"lms-agent/service/actions"
)

func testResolver() *Resolver {
	return NewResolver(0.75, 0.05, logger.Discard())
}

func TestMatchPrecedence(t *testing.T) {
	r := testResolver()
	users := []model.Entity{sarah, sarahK, john}

	tests := []struct {
		name string
		ref  string
		want string
	}{
		{"numeric id", "12", "12"},
		{"exact email", "SARAH@x.com", "11"},
		{"exact name", "john park", "12"},
		{"fuzzy typo", "Jonh Park", "12"},
		{"token overlap", "Park", "12"},
		{"email local part", "skim", "13"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Match(model.EntityUser, tt.ref, users)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestMatchIDBeatsName(t *testing.T) {
	odd := model.Entity{ID: "100", Name: "12"}
	got, err := testResolver().Match(model.EntityCourse, "12", []model.Entity{odd, {ID: "12", Name: "Twelve"}})
	require.NoError(t, err)
	assert.Equal(t, "12", got.ID)
}

func TestMatchAmbiguousFuzzy(t *testing.T) {
	_, err := testResolver().Match(model.EntityUser, "Sarah", []model.Entity{sarah, sarahK, john})

	var pe *model.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.KindEntityResolution, pe.Kind)
	assert.True(t, errors.Is(err, model.ErrEntityAmbiguous))
	assert.ElementsMatch(t, []model.Entity{sarah, sarahK}, pe.Candidates)
	assert.Contains(t, pe.Detail, "Which one did you mean?")
}

func TestMatchFillerWordsIgnored(t *testing.T) {
	got, err := testResolver().Match(model.EntityCourse, "Safety course", []model.Entity{excel, safety})
	require.NoError(t, err)
	assert.Equal(t, "9", got.ID)
}

func TestMatchNotFound(t *testing.T) {
	for _, ref := range []string{"999", "Quantum Basket Weaving"} {
		_, err := testResolver().Match(model.EntityCourse, ref, []model.Entity{excel, excelAdv})
		assert.True(t, errors.Is(err, model.ErrEntityNotFound), ref)
	}
}

func TestResolveAllPronouns(t *testing.T) {
	r := testResolver()
	fake := newDirectory()
	spec := Actions[model.IntentUnenrollUsers]
	cc := &model.ChatContext{
		UserID: "42",
		PreviousRequests: []model.RequestRecord{
			{Intent: model.IntentEnrollUsers, Resolved: map[string][]model.Entity{
				"users":  {withKind(sarah, model.EntityUser), withKind(john, model.EntityUser)},
				"course": {withKind(excel, model.EntityCourse)},
			}},
		},
	}

	caller := actions.NewCaller(fake, time.Second)
	got, err := r.ResolveAll(context.Background(), caller, spec, map[string]any{"users": "them", "course": "that course"}, cc)
	require.NoError(t, err)
	assert.Equal(t, []string{"11", "12"}, actions.IDs(got["users"]))
	assert.Equal(t, "7", got["course"][0].ID)
	assert.Empty(t, caller.Called())

	me, err := r.ResolveAll(context.Background(), caller, Actions[model.IntentGetUserEnrollments], map[string]any{"user": "me"}, cc)
	require.NoError(t, err)
	assert.Equal(t, "42", me["user"][0].ID)
}

func TestResolveAllPronounWithoutHistory(t *testing.T) {
	_, err := testResolver().ResolveAll(context.Background(), actions.NewCaller(newDirectory(), time.Second),
		Actions[model.IntentUnenrollUsers], map[string]any{"users": "them", "course": "Excel Basics"}, &model.ChatContext{})
	assert.True(t, errors.Is(err, model.ErrEntityNotFound))
}

func TestResolveAllSearchesOnlyReadOnly(t *testing.T) {
	fake := newDirectory()
	caller := actions.NewCaller(fake, time.Second)

	got, err := testResolver().ResolveAll(context.Background(), caller, Actions[model.IntentEnrollUsers],
		map[string]any{"users": []any{"sarah@x.com", "john@x.com"}, "course": "Workplace Safety"}, &model.ChatContext{})
	require.NoError(t, err)
	assert.Len(t, got["users"], 2)
	assert.Equal(t, "9", got["course"][0].ID)
	assert.Equal(t, []string{"searchCourses", "searchUsers", "searchUsers"}, caller.Called())
	assert.Zero(t, fake.Mutations())
}

func withKind(e model.Entity, k model.EntityKind) model.Entity {
	e.Kind = k
	return e
}
