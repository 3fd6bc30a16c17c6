package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-agent/config"
	"lms-agent/dao"
	"lms-agent/internal/lmstest"
	"lms-agent/internal/logger"
	"lms-agent/model"
)

type chatFixture struct {
	svc        *ChatService
	classifier *fakeClassifier
	lms        *lmstest.Fake
	store      *dao.MemoryStore
}

func newChatFixture(t *testing.T, cfg *config.Config) *chatFixture {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	fc := &fakeClassifier{}
	lms := newDirectory()
	store := dao.NewMemoryStore(time.Hour, logger.Discard())
	return &chatFixture{
		svc:        NewChatService(cfg, fc, lms, store, logger.Discard()),
		classifier: fc,
		lms:        lms,
		store:      store,
	}
}

func body(t *testing.T, message string, role model.Role) []byte {
	t.Helper()
	bs, err := json.Marshal(map[string]string{"message": message, "userId": "42", "userRole": string(role)})
	require.NoError(t, err)
	return bs
}

func (f *chatFixture) send(t *testing.T, message string, role model.Role) *Outcome {
	t.Helper()
	return f.svc.HandleMessage(context.Background(), Inbound{
		Body:          body(t, message, role),
		ClientIP:      "10.0.0.1",
		Authorization: "Bearer abc",
		RequestID:     "req-1",
	})
}

func TestScenarioUserEnrollIsDenied(t *testing.T) {
	f := newChatFixture(t, nil)
	f.classifier.fn = classifyAs(model.IntentEnrollUsers, map[string]any{"users": []any{"sarah@x.com"}, "course": "Excel Basics"})

	out := f.send(t, "enroll sarah@x.com in Excel course", model.RoleUser)

	assert.Equal(t, http.StatusOK, out.Status)
	assert.False(t, out.Result.Success)
	assert.Equal(t, model.IntentEnrollUsers, out.Result.Intent)
	data := out.Result.Data.(map[string]any)
	assert.Equal(t, "permission_denied", data["error"])
	assert.Contains(t, data["allowed_actions"], model.IntentGetUserEnrollments)
	assert.Zero(t, f.lms.Mutations())
}

func TestScenarioPowerUserThrottled(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimits[model.RolePowerUser] = config.RateLimitRule{Capacity: 2, RefillPerSecond: 0.5}
	f := newChatFixture(t, cfg)
	f.classifier.fn = classifyAs(model.IntentSearchCourses, map[string]any{"query": "excel"})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, f.send(t, "find excel courses", model.RolePowerUser).Status)
	}
	out := f.send(t, "find excel courses", model.RolePowerUser)

	assert.Equal(t, http.StatusTooManyRequests, out.Status)
	require.NotNil(t, out.Admission)
	assert.False(t, out.Admission.Allowed)
	assert.Positive(t, out.Admission.RetryAfterMs)
	data := out.Result.Data.(map[string]any)
	assert.Contains(t, data, "retry_after")
	assert.Equal(t, 2, f.classifier.Calls())
}

func TestScenarioScriptRejectedBeforeClassifier(t *testing.T) {
	f := newChatFixture(t, nil)

	out := f.send(t, "<script>alert('x')</script>", model.RoleSuperAdmin)

	assert.Equal(t, http.StatusBadRequest, out.Status)
	data := out.Result.Data.(map[string]any)
	assert.Contains(t, data["threats"], model.ThreatXSS)
	assert.Zero(t, f.classifier.Calls())
	assert.Nil(t, out.Admission)
}

func TestScenarioSuperadminUnenrollConfirmed(t *testing.T) {
	f := newChatFixture(t, nil)
	f.classifier.fn = classifyAs(model.IntentUnenrollUsers, map[string]any{"users": []any{"sarah@x.com"}, "course": "Excel Basics"})

	prompt := f.send(t, "unenroll sarah@x.com from Excel Basics", model.RoleSuperAdmin)
	require.Equal(t, http.StatusOK, prompt.Status)
	assert.Equal(t, model.StateAwaitingConfirmation, prompt.Result.State)
	assert.Equal(t, "confirm", prompt.Result.Actions[0].ID)
	assert.Zero(t, f.lms.Mutations())

	done := f.send(t, "yes", model.RoleSuperAdmin)
	require.Equal(t, http.StatusOK, done.Status)
	assert.Equal(t, model.StateCompleted, done.Result.State)
	assert.True(t, done.Result.Success)
	assert.Equal(t, []string{"unenrollUsers"}, done.Result.Meta.FunctionsCalled)
	assert.Equal(t, 1, f.lms.Calls("UnenrollUsers"))
	assert.Equal(t, 1, f.classifier.Calls())
}

func TestConcurrentYesExecutesOnce(t *testing.T) {
	f := newChatFixture(t, nil)
	f.classifier.fn = classifyAs(model.IntentUnenrollUsers, map[string]any{"users": []any{"sarah@x.com"}, "course": "Excel Basics"})
	require.Equal(t, model.StateAwaitingConfirmation, f.send(t, "unenroll sarah@x.com from Excel Basics", model.RoleSuperAdmin).Result.State)

	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := f.send(t, "yes", model.RoleSuperAdmin)
			if out.Result.State == model.StateCompleted {
				mu.Lock()
				completed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, f.lms.Calls("UnenrollUsers"))
}

func TestNegatedConfirmationMakesNoCalls(t *testing.T) {
	f := newChatFixture(t, nil)
	f.classifier.fn = classifyAs(model.IntentEnrollUsers, map[string]any{"users": "john@x.com", "course": "Workplace Safety"})
	f.send(t, "enroll john@x.com in Workplace Safety", model.RoleSuperAdmin)

	out := f.send(t, "no", model.RoleSuperAdmin)
	assert.Equal(t, model.StateFailed, out.Result.State)
	assert.Zero(t, f.lms.Mutations())

	again := f.send(t, "yes", model.RoleSuperAdmin)
	assert.Equal(t, "There is nothing waiting for confirmation. What would you like to do?", again.Result.Response)
	assert.Zero(t, f.lms.Mutations())
}

func TestRequestWhileConfirmationPendingIsNotAnAnswer(t *testing.T) {
	f := newChatFixture(t, nil)
	f.classifier.fn = func(message string) (*model.Classification, error) {
		if strings.Contains(message, "show my enrollments") {
			return &model.Classification{Intent: model.IntentGetUserEnrollments, Confidence: 0.9}, nil
		}
		return classifyAs(model.IntentUnenrollUsers, map[string]any{"users": []any{"sarah@x.com"}, "course": "Excel Basics"})(message)
	}
	require.Equal(t, model.StateAwaitingConfirmation,
		f.send(t, "unenroll sarah@x.com from Excel Basics", model.RoleSuperAdmin).Result.State)

	out := f.send(t, "ok show my enrollments", model.RoleSuperAdmin)

	assert.Equal(t, model.IntentGetUserEnrollments, out.Result.Intent)
	assert.Equal(t, model.StateCompleted, out.Result.State)
	assert.Zero(t, f.lms.Calls("UnenrollUsers"))
	assert.Equal(t, 2, f.classifier.Calls())

	p, err := f.store.PeekPending(context.Background(), "user:42")
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestLateConfirmationAfterSweepReportsExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.Dispatch.ConfirmationTTL = time.Millisecond
	f := newChatFixture(t, cfg)
	f.classifier.fn = classifyAs(model.IntentUnenrollUsers, map[string]any{"users": []any{"sarah@x.com"}, "course": "Excel Basics"})
	require.Equal(t, model.StateAwaitingConfirmation,
		f.send(t, "unenroll sarah@x.com from Excel Basics", model.RoleSuperAdmin).Result.State)

	time.Sleep(10 * time.Millisecond)
	f.store.Sweep()

	out := f.send(t, "yes", model.RoleSuperAdmin)
	assert.Equal(t, model.StateFailed, out.Result.State)
	assert.False(t, out.Result.Success)
	assert.Contains(t, out.Result.Response, "expired")
	assert.Zero(t, f.lms.Mutations())

	again := f.send(t, "yes", model.RoleSuperAdmin)
	assert.Equal(t, "There is nothing waiting for confirmation. What would you like to do?", again.Result.Response)
	assert.Zero(t, f.lms.Mutations())
}

func TestAmbiguousReferencePrompts(t *testing.T) {
	f := newChatFixture(t, nil)
	f.classifier.fn = classifyAs(model.IntentEnrollUsers, map[string]any{"users": "Sarah", "course": "Excel Basics"})

	out := f.send(t, "enroll Sarah in Excel Basics", model.RolePowerUser)

	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, model.StateAwaitingEntities, out.Result.State)
	data := out.Result.Data.(map[string]any)
	assert.Len(t, data["candidates"], 2)
	assert.Zero(t, f.lms.Mutations())
	p, err := f.store.PeekPending(context.Background(), "user:42")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestUpstreamFailureStatus(t *testing.T) {
	f := newChatFixture(t, nil)
	f.lms.Delay = 200 * time.Millisecond
	f.svc.dispatcher.callTimeout = 10 * time.Millisecond
	f.classifier.fn = classifyAs(model.IntentSearchUsers, map[string]any{"query": "sarah"})

	out := f.send(t, "find sarah", model.RoleSuperAdmin)

	assert.Equal(t, http.StatusGatewayTimeout, out.Status)
	assert.Equal(t, Actions[model.IntentSearchUsers].Failure, out.Result.Response)
	assert.Equal(t, []string{"searchUsers"}, out.Result.Meta.FunctionsCalled)
}

func TestSanitizedMessageReachesClassifier(t *testing.T) {
	f := newChatFixture(t, nil)
	f.classifier.fn = classifyAs(model.IntentSearchCourses, map[string]any{"query": "excel"})

	out := f.send(t, "find <b>excel</b>\tcourses", model.RoleUser)
	require.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, []string{"find excel courses"}, f.classifier.messages)
}

func TestInvalidBody(t *testing.T) {
	f := newChatFixture(t, nil)
	out := f.svc.HandleMessage(context.Background(), Inbound{Body: []byte(`{"message": ""}`), RequestID: "r"})

	assert.Equal(t, http.StatusBadRequest, out.Status)
	assert.Equal(t, model.IntentError, out.Result.Intent)
	assert.NotEmpty(t, out.Result.Actions)
	assert.NotNil(t, out.Result.Meta.FunctionsCalled)
}

func TestPanicIsInternalError(t *testing.T) {
	f := newChatFixture(t, nil)
	f.classifier.fn = func(string) (*model.Classification, error) {
		panic("classifier bug")
	}

	out := f.send(t, "find courses", model.RoleUser)
	assert.Equal(t, http.StatusInternalServerError, out.Status)
	assert.False(t, strings.Contains(out.Result.Response, "classifier bug"))
}

func TestCapabilitiesFollowRole(t *testing.T) {
	f := newChatFixture(t, nil)

	var intents []model.Intent
	for _, c := range f.svc.Capabilities(model.RoleUser) {
		intents = append(intents, c.Intent)
	}
	assert.Contains(t, intents, model.IntentGetUserEnrollments)
	assert.Contains(t, intents, model.IntentHelp)
	assert.NotContains(t, intents, model.IntentEnrollUsers)
}

func TestCapabilitiesMarkDestructiveIntents(t *testing.T) {
	f := newChatFixture(t, nil)

	flags := make(map[model.Intent]bool)
	for _, c := range f.svc.Capabilities(model.RoleSuperAdmin) {
		flags[c.Intent] = c.Destructive
	}
	assert.True(t, flags[model.IntentUnenrollUsers])
	assert.True(t, flags[model.IntentEnrollUsers])
	assert.False(t, flags[model.IntentSearchCourses])
	assert.False(t, flags[model.IntentGetUserEnrollments])
}

func TestSessionIDPrecedence(t *testing.T) {
	assert.Equal(t, "abc", SessionID(" abc ", "hdr", "42", "c"))
	assert.Equal(t, "hdr", SessionID("", "hdr", "42", "c"))
	assert.Equal(t, "user:42", SessionID("", "", "42", "c"))
	assert.Equal(t, "client:c", SessionID("", "", "", "c"))

	assert.Equal(t, ClientID("1.2.3.4", "t"), ClientID("1.2.3.4", "t"))
	assert.NotEqual(t, ClientID("1.2.3.4", "t"), ClientID("1.2.3.4", "u"))
	assert.NotContains(t, ClientID("1.2.3.4", "secret"), "secret")
}
