package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"lms-agent/config"
	"lms-agent/dao"
	"lms-agent/model"
	"lms-agent/service/actions"
)

// Dispatcher drives the action state machine:
// awaiting_entities -> awaiting_confirmation -> executing -> completed | failed.
// It is the only writer of session state.
type Dispatcher struct {
	registry     ActionRegistry
	store        dao.SessionStore
	lms          model.LmsClient
	gate         *PermissionGate
	resolver     *Resolver
	destructive  map[model.Intent]bool
	ttl          time.Duration
	callTimeout  time.Duration
	historyLimit int
	now          func() time.Time
	newID        func() string
	logger       *slog.Logger
}

func NewDispatcher(cfg config.DispatchConfig, lmsTimeout time.Duration, registry ActionRegistry, store dao.SessionStore,
	lms model.LmsClient, gate *PermissionGate, logger *slog.Logger) *Dispatcher {
	destructive := make(map[model.Intent]bool, len(cfg.DestructiveIntents))
	for _, in := range cfg.DestructiveIntents {
		destructive[in] = true
	}
	return &Dispatcher{
		registry:     registry,
		store:        store,
		lms:          lms,
		gate:         gate,
		resolver:     NewResolver(cfg.FuzzyThreshold, cfg.TieMargin, logger),
		destructive:  destructive,
		ttl:          cfg.ConfirmationTTL,
		callTimeout:  lmsTimeout,
		historyLimit: cfg.HistoryLimit,
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
		logger:       logger.With("component", "dispatcher"),
	}
}

// Destructive reports whether intent needs an explicit yes before it runs.
func (d *Dispatcher) Destructive(intent model.Intent) bool {
	return d.destructive[intent]
}

// Dispatch handles a classified, authorized intent. Destructive intents stop at
// awaiting_confirmation with a pending record; nothing mutating runs on this turn.
func (d *Dispatcher) Dispatch(ctx context.Context, c *model.Classification, cc *model.ChatContext) (*model.ChatResult, error) {
	spec, ok := d.registry[c.Intent]
	if !ok || c.Intent == model.IntentError {
		return &model.ChatResult{
			Intent:   model.IntentError,
			Response: "I couldn't understand that request. Try rephrasing it, or ask for help to see what I can do.",
			State:    model.StateFailed,
		}, nil
	}

	entities := make(map[string]any, len(c.Entities)+len(spec.Defaults))
	for k, v := range c.Entities {
		entities[k] = v
	}
	for k, v := range spec.Defaults {
		if !actions.Present(entities, k) && cc.UserID != "" {
			entities[k] = v
		}
	}

	if missing := spec.Missing(entities, c.MissingFields); len(missing) > 0 {
		return &model.ChatResult{
			Intent:   c.Intent,
			Success:  true,
			Response: fmt.Sprintf("To %s I still need: %s.", strings.ToLower(spec.Description), strings.Join(humanFields(missing), ", ")),
			State:    model.StateAwaitingEntities,
			Data:     map[string]any{"missing_fields": missing},
		}, nil
	}
	if spec.Check != nil {
		if err := spec.Check(entities); err != nil {
			return nil, withIntent(err, c.Intent)
		}
	}

	caller := actions.NewCaller(d.lms, d.callTimeout)
	resolved, err := d.resolver.ResolveAll(ctx, caller, spec, entities, cc)
	if err != nil {
		return nil, d.failure(spec, c.Intent, caller, err)
	}

	req := actions.Request{
		Intent:       c.Intent,
		Entities:     entities,
		Resolved:     resolved,
		Context:      cc,
		Capabilities: d.registry.Capabilities(d.gate.Allowed(cc.Role), d.Destructive),
	}

	if d.Destructive(c.Intent) {
		return d.requestConfirmation(ctx, spec, req, caller)
	}
	return d.execute(ctx, spec, req, caller)
}

func (d *Dispatcher) requestConfirmation(ctx context.Context, spec ActionSpec, req actions.Request, caller *actions.Caller) (*model.ChatResult, error) {
	now := d.now()
	p := model.PendingConfirmation{
		ActionID:    d.newID(),
		Intent:      req.Intent,
		Entities:    req.Entities,
		Resolved:    req.Resolved,
		RequestedBy: req.Context.UserID,
		RequestedAt: now,
		ExpiresAt:   now.Add(d.ttl),
	}
	if err := d.store.PutPending(ctx, req.Context.SessionID, p); err != nil {
		return nil, fmt.Errorf("store pending confirmation: %w", err)
	}
	req.Context.PendingConfirmation = &p

	d.logger.Info("awaiting confirmation",
		"session", req.Context.SessionID, "intent", req.Intent, "action_id", p.ActionID)

	prompt := fmt.Sprintf("Please confirm %s. Reply yes to confirm or no to cancel.", strings.ToLower(spec.Description))
	if spec.Confirm != nil {
		prompt = spec.Confirm(req)
	}
	return &model.ChatResult{
		Intent:   req.Intent,
		Success:  true,
		Response: prompt,
		State:    model.StateAwaitingConfirmation,
		Data: map[string]any{
			"action_id":  p.ActionID,
			"expires_at": p.ExpiresAt,
			"entities":   p.Resolved,
		},
		Meta: model.Meta{FunctionsCalled: caller.Called()},
	}, nil
}

// Confirm answers the session's pending confirmation. The record is taken
// atomically, so of two concurrent answers only one can execute it.
func (d *Dispatcher) Confirm(ctx context.Context, cc *model.ChatContext, affirmed bool) (*model.ChatResult, error) {
	p, err := d.store.TakePending(ctx, cc.SessionID)
	if err != nil {
		return nil, fmt.Errorf("take pending confirmation: %w", err)
	}
	cc.PendingConfirmation = nil

	if p == nil {
		return &model.ChatResult{
			Intent:   model.IntentHelp,
			Response: "That action was already handled or has expired. Nothing was changed.",
			State:    model.StateFailed,
		}, nil
	}

	log := d.logger.With("session", cc.SessionID, "intent", p.Intent, "action_id", p.ActionID)
	switch {
	case p.Expired(d.now()):
		log.Info("confirmation expired")
		return &model.ChatResult{
			Intent:   p.Intent,
			Response: "The confirmation window for that action has expired. Nothing was changed; please send the request again.",
			State:    model.StateFailed,
		}, nil
	case !affirmed:
		log.Info("confirmation declined")
		return &model.ChatResult{
			Intent:   p.Intent,
			Response: "Cancelled. Nothing was changed.",
			State:    model.StateFailed,
		}, nil
	}

	if !d.gate.Authorize(cc.Role, p.Intent) {
		log.Warn("confirmation by role without permission", "role", cc.Role)
		return nil, model.NewPermissionError("confirm", p.Intent, d.gate.Allowed(cc.Role))
	}
	spec, ok := d.registry[p.Intent]
	if !ok {
		return nil, fmt.Errorf("%w: no action for pending intent %q", model.ErrInternal, p.Intent)
	}

	log.Info("confirmation accepted")
	return d.execute(ctx, spec, actions.Request{
		Intent:   p.Intent,
		Entities: p.Entities,
		Resolved: p.Resolved,
		Context:  cc,
	}, actions.NewCaller(d.lms, d.callTimeout))
}

// NothingPending answers a bare yes/no when no action is waiting.
func (d *Dispatcher) NothingPending() *model.ChatResult {
	return &model.ChatResult{
		Intent:   model.IntentHelp,
		Success:  true,
		Response: "There is nothing waiting for confirmation. What would you like to do?",
		State:    model.StateCompleted,
	}
}

func (d *Dispatcher) execute(ctx context.Context, spec ActionSpec, req actions.Request, caller *actions.Caller) (*model.ChatResult, error) {
	out, err := spec.Handler(ctx, caller, req)
	if err != nil {
		return nil, d.failure(spec, req.Intent, caller, err)
	}

	rec := model.RequestRecord{Intent: req.Intent, Entities: req.Entities, Resolved: req.Resolved, At: d.now()}
	if err := d.store.AppendRequest(ctx, req.Context.SessionID, rec, d.historyLimit); err != nil {
		d.logger.Warn("append request history failed", "session", req.Context.SessionID, "error", err)
	} else {
		req.Context.PreviousRequests = append(req.Context.PreviousRequests, rec)
	}

	return &model.ChatResult{
		Intent:   req.Intent,
		Success:  true,
		Response: out.Response,
		State:    model.StateCompleted,
		Data:     out.Data,
		Meta:     model.Meta{FunctionsCalled: caller.Called()},
	}, nil
}

// failure keeps pipeline errors as they are and turns anything else from the
// LMS into an upstream error carrying the intent's generic message.
func (d *Dispatcher) failure(spec ActionSpec, intent model.Intent, caller *actions.Caller, err error) error {
	var pe *model.PipelineError
	if !errors.As(err, &pe) {
		pe = model.NewUpstreamError("dispatch", intent, err, spec.Failure)
	}
	if pe.Intent == "" {
		pe.Intent = intent
	}
	pe.Called = caller.Called()
	d.logger.Warn("action failed", "intent", intent, "kind", pe.Kind, "error", err)
	return pe
}

func withIntent(err error, intent model.Intent) error {
	var pe *model.PipelineError
	if errors.As(err, &pe) && pe.Intent == "" {
		pe.Intent = intent
	}
	return err
}

func humanFields(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strings.ReplaceAll(k, "_", " ")
	}
	return out
}
