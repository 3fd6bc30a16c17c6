package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"lms-agent/config"
	"lms-agent/dao"
	"lms-agent/internal/logger"
	"lms-agent/internal/tracer"
	"lms-agent/model"
)

// Inbound is one chat request as seen at the HTTP boundary.
type Inbound struct {
	Body          []byte
	ClientIP      string
	Authorization string
	SessionHeader string
	RequestID     string
}

// Outcome is the classified result of one request. Admission is nil when the
// request was rejected before rate limiting.
type Outcome struct {
	Status    int
	Result    *model.ChatResult
	Admission *Admission
	SessionID string
}

type ChatService struct {
	validator  *InputValidator
	limiter    *RateLimiter
	store      dao.SessionStore
	decision   *DecisionLayer
	gate       *PermissionGate
	dispatcher *Dispatcher
	composer   *Composer
	errs       *ErrorClassifier
	registry   ActionRegistry

	limiterSweep time.Duration
	storeSweep   time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

func NewChatService(cfg *config.Config, classifier model.IntentClassifier, lms model.LmsClient, store dao.SessionStore, logger *slog.Logger) *ChatService {
	gate := NewPermissionGate(cfg.Permissions)
	return &ChatService{
		validator:    NewInputValidator(cfg.Server, cfg.Validation),
		limiter:      NewRateLimiter(cfg.RateLimits, cfg.Limiter, logger),
		store:        store,
		decision:     NewDecisionLayer(classifier, cfg.Classifier.ConfidenceThreshold, cfg.Classifier.Timeout, logger),
		gate:         gate,
		dispatcher:   NewDispatcher(cfg.Dispatch, cfg.LMS.Timeout, Actions, store, lms, gate, logger),
		composer:     NewComposer(gate),
		errs:         NewErrorClassifier(Actions, logger),
		registry:     Actions,
		limiterSweep: cfg.Limiter.SweepInterval,
		storeSweep:   cfg.Dispatch.SweepInterval,
		now:          time.Now,
		logger:       logger.With("component", "chat"),
	}
}

// Start runs the background sweepers until ctx is done.
func (s *ChatService) Start(ctx context.Context) {
	go s.limiter.Run(ctx, s.limiterSweep)
	if sw, ok := s.store.(interface {
		Run(context.Context, time.Duration)
	}); ok {
		go sw.Run(ctx, s.storeSweep)
	}
}

// Capabilities lists the intents role may invoke, with descriptions.
func (s *ChatService) Capabilities(role model.Role) []model.Capability {
	return s.registry.Capabilities(s.gate.Allowed(role), s.dispatcher.Destructive)
}

// HandleMessage runs the full pipeline. It never returns an error: every failure
// is classified into a status and a ChatResult.
func (s *ChatService) HandleMessage(ctx context.Context, in Inbound) *Outcome {
	start := s.now()
	ctx, span := tracer.StartSpan(ctx, "chat.handle_message")
	defer span.End()

	out := &Outcome{Status: http.StatusOK}
	meta := RequestMeta{RequestID: in.RequestID, Role: model.RoleUser}

	res, err := s.run(ctx, in, out, &meta)
	if err != nil {
		out.Status, res = s.errs.Classify(err, meta)
		tracer.RecordError(span, string(model.KindOf(err)), err)
	} else {
		tracer.SetOK(span)
	}

	final := s.composer.Compose(res, meta.Role)
	final.Meta.Timestamp = start.UTC()
	final.Meta.ProcessingTimeMs = s.now().Sub(start).Milliseconds()
	final.Meta.RequestID = in.RequestID
	if final.Meta.FunctionsCalled == nil {
		final.Meta.FunctionsCalled = []string{}
	}
	out.Result = final

	span.SetAttributes(
		tracer.StringAttr("chat.intent", string(final.Intent)),
		tracer.StringAttr("chat.role", string(meta.Role)),
		tracer.IntAttr("http.status_code", out.Status),
	)
	s.logger.Info("chat request handled",
		"request_id", in.RequestID,
		"session", out.SessionID,
		"role", meta.Role,
		"intent", final.Intent,
		"state", final.State,
		"status", out.Status,
		"functions", final.Meta.FunctionsCalled,
		"duration_ms", final.Meta.ProcessingTimeMs,
	)
	return out
}

func (s *ChatService) run(ctx context.Context, in Inbound, out *Outcome, meta *RequestMeta) (res *model.ChatResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in chat pipeline", "request_id", in.RequestID, "panic", r, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("%w: recovered panic", model.ErrInternal)
		}
	}()

	body := s.validator.Validate(in.Body)
	if !body.Success {
		return nil, model.NewValidationError("validate", body.Errors, nil)
	}
	req := body.Request
	if req.UserRole != "" {
		meta.Role = model.Role(req.UserRole)
	}

	sec := s.validator.ValidateSecurity(req.Message)
	if !sec.Safe {
		return nil, model.NewValidationError("validate_security", nil, sec.ThreatsDetected)
	}
	if sec.SanitizedMessage == "" {
		return nil, model.NewValidationError("validate_security",
			[]model.FieldError{{Field: "message", Message: "must contain text"}}, nil)
	}
	message := sec.SanitizedMessage

	id := model.Identity{ClientID: ClientID(in.ClientIP, in.Authorization), Role: meta.Role}
	adm := s.limiter.Admit(id)
	out.Admission = &adm
	if !adm.Allowed {
		pe := model.NewRateLimitError("admit", time.Duration(adm.RetryAfterMs)*time.Millisecond)
		pe.Remaining = adm.Remaining
		return nil, pe
	}

	out.SessionID = SessionID(req.SessionID, in.SessionHeader, req.UserID, id.ClientID)
	cc, err := s.store.Load(ctx, out.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if cc == nil {
		cc = &model.ChatContext{SessionID: out.SessionID}
	}
	cc.Role = meta.Role
	cc.UserID = req.UserID

	s.logger.Debug("chat message accepted",
		"request_id", in.RequestID, "session", cc.SessionID, "message_len", len(message), "preview", logger.Preview(message))

	dctx, dspan := tracer.StartSpan(ctx, "chat.decide")
	decision, err := s.decision.Decide(dctx, message, cc)
	dspan.End()
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.StartSpan(ctx, "chat.dispatch")
	defer span.End()

	switch decision.Type {
	case DecisionNothingPending:
		return s.dispatcher.NothingPending(), nil
	case DecisionConfirm:
		return s.dispatcher.Confirm(ctx, cc, decision.Affirmed)
	}

	c := decision.Classification
	meta.Intent = c.Intent
	if !s.gate.Authorize(meta.Role, c.Intent) {
		return nil, model.NewPermissionError("authorize", c.Intent, s.gate.Allowed(meta.Role))
	}
	return s.dispatcher.Dispatch(ctx, c, cc)
}

// ClientID derives the rate-limit identity from the caller's origin and credential.
// Only the digest is kept, so tokens never reach logs or bucket keys.
func ClientID(clientIP, authorization string) string {
	sum := sha256.Sum256([]byte(clientIP + "|" + authorization))
	return hex.EncodeToString(sum[:])
}

// SessionID picks the conversation key: explicit id, header, user, then client.
func SessionID(bodyID, headerID, userID, clientID string) string {
	if id := strings.TrimSpace(bodyID); id != "" {
		return id
	}
	if id := strings.TrimSpace(headerID); id != "" {
		return id
	}
	if userID != "" {
		return "user:" + userID
	}
	return "client:" + clientID
}
