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
)

func TestDecideShortCircuitsConfirmation(t *testing.T) {
	fc := &fakeClassifier{}
	d := NewDecisionLayer(fc, 0.6, time.Second, logger.Discard())
	cc := &model.ChatContext{SessionID: "s1", PendingConfirmation: &model.PendingConfirmation{ActionID: "a"}}

	yes, err := d.Decide(context.Background(), "Yes, please", cc)
	require.NoError(t, err)
	assert.Equal(t, DecisionConfirm, yes.Type)
	assert.True(t, yes.Affirmed)

	no, err := d.Decide(context.Background(), "no, cancel", cc)
	require.NoError(t, err)
	assert.Equal(t, DecisionConfirm, no.Type)
	assert.False(t, no.Affirmed)

	assert.Zero(t, fc.Calls())
}

func TestDecideYesWithoutPending(t *testing.T) {
	fc := &fakeClassifier{}
	d := NewDecisionLayer(fc, 0.6, time.Second, logger.Discard())

	res, err := d.Decide(context.Background(), "yes", &model.ChatContext{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, DecisionNothingPending, res.Type)
	assert.Zero(t, fc.Calls())
}

func TestDecideClassifiesOtherMessagesEvenWhenPending(t *testing.T) {
	fc := &fakeClassifier{fn: classifyAs(model.IntentSearchCourses, map[string]any{"query": "excel"})}
	d := NewDecisionLayer(fc, 0.6, time.Second, logger.Discard())
	cc := &model.ChatContext{SessionID: "s1", PendingConfirmation: &model.PendingConfirmation{ActionID: "a"}}

	res, err := d.Decide(context.Background(), "actually search excel courses first", cc)
	require.NoError(t, err)
	assert.Equal(t, DecisionClassified, res.Type)
	assert.Equal(t, model.IntentSearchCourses, res.Classification.Intent)
	assert.Equal(t, 1, fc.Calls())
}

func TestDecideClassifierFailures(t *testing.T) {
	t.Run("refusal", func(t *testing.T) {
		fc := &fakeClassifier{fn: func(string) (*model.Classification, error) {
			return nil, errors.New("503 from model host")
		}}
		d := NewDecisionLayer(fc, 0.6, time.Second, logger.Discard())

		_, err := d.Decide(context.Background(), "find courses", &model.ChatContext{SessionID: "s1"})
		var pe *model.PipelineError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, model.KindUpstream, pe.Kind)
		assert.False(t, pe.Timeout)
	})

	t.Run("timeout", func(t *testing.T) {
		fc := &fakeClassifier{fn: func(string) (*model.Classification, error) {
			time.Sleep(50 * time.Millisecond)
			return nil, errors.New("gave up")
		}}
		d := NewDecisionLayer(fc, 0.6, 10*time.Millisecond, logger.Discard())

		_, err := d.Decide(context.Background(), "find courses", &model.ChatContext{SessionID: "s1"})
		var pe *model.PipelineError
		require.ErrorAs(t, err, &pe)
		assert.True(t, pe.Timeout)
	})
}
