package service

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"lms-agent/model"
)

// RequestMeta is what the classifier may attach to an error body.
type RequestMeta struct {
	RequestID string
	Role      model.Role
	Intent    model.Intent
}

// ErrorClassifier is the single place user-visible error text is produced.
type ErrorClassifier struct {
	registry ActionRegistry
	logger   *slog.Logger
}

func NewErrorClassifier(registry ActionRegistry, logger *slog.Logger) *ErrorClassifier {
	return &ErrorClassifier{registry: registry, logger: logger.With("component", "error_classifier")}
}

// Classify maps any error onto an HTTP status and a ChatResult body.
func (e *ErrorClassifier) Classify(err error, meta RequestMeta) (int, *model.ChatResult) {
	pe := e.normalize(err, meta)

	res := &model.ChatResult{
		Intent: pe.Intent,
		State:  model.StateFailed,
		Meta:   model.Meta{FunctionsCalled: append([]string{}, pe.Called...), RequestID: meta.RequestID},
	}
	if res.Intent == "" {
		res.Intent = meta.Intent
	}
	if res.Intent == "" {
		res.Intent = model.IntentError
	}

	log := e.logger.With("request_id", meta.RequestID, "kind", pe.Kind, "op", pe.Op)

	switch pe.Kind {
	case model.KindValidation:
		data := map[string]any{"error": string(model.KindValidation)}
		if len(pe.Fields) > 0 {
			data["fields"] = pe.Fields
		}
		if len(pe.Threats) > 0 {
			data["threats"] = pe.Threats
		}
		res.Intent = model.IntentError
		res.Response = validationText(pe)
		res.Data = data
		log.Info("request rejected", "fields", len(pe.Fields), "threats", pe.Threats)
		return http.StatusBadRequest, res

	case model.KindPermission:
		res.Response = e.permissionText(meta.Role, pe)
		res.Data = map[string]any{
			"error":           string(model.KindPermission),
			"allowed_actions": pe.Allowed,
		}
		log.Info("permission denied", "role", meta.Role, "intent", pe.Intent)
		return http.StatusOK, res

	case model.KindRateLimit:
		retryMs := pe.RetryAfter.Milliseconds()
		res.Intent = model.IntentError
		res.Response = fmt.Sprintf("You're sending requests too quickly. Please wait %d seconds and try again.", retryAfterSeconds(pe.RetryAfter))
		res.Data = map[string]any{
			"error":          string(model.KindRateLimit),
			"retry_after":    retryAfterSeconds(pe.RetryAfter),
			"retry_after_ms": retryMs,
		}
		log.Info("rate limited", "role", meta.Role, "retry_after_ms", retryMs)
		return http.StatusTooManyRequests, res

	case model.KindEntityResolution:
		data := map[string]any{"error": string(model.KindEntityResolution)}
		if len(pe.Candidates) > 0 {
			data["candidates"] = pe.Candidates
		}
		res.Response = pe.Detail
		if res.Response == "" {
			res.Response = "I couldn't work out which record you meant. Please be more specific."
		}
		res.State = model.StateAwaitingEntities
		res.Data = data
		log.Info("entity resolution prompt", "candidates", len(pe.Candidates))
		return http.StatusOK, res

	case model.KindUpstream:
		res.Response = pe.Detail
		if res.Response == "" {
			res.Response = "A connected service is unavailable right now. Please try again shortly."
		}
		res.Data = map[string]any{"error": string(model.KindUpstream)}
		if pe.Err != nil {
			res.Meta.Cause = pe.Err.Error()
		}
		log.Error("upstream failure", "intent", pe.Intent, "timeout", pe.Timeout, "error", pe.Err)
		if pe.Timeout {
			return http.StatusGatewayTimeout, res
		}
		return http.StatusBadGateway, res
	}

	res.Intent = model.IntentError
	res.Response = "Something went wrong on our side. Please try again."
	res.Data = map[string]any{"error": string(model.KindInternal)}
	if pe.Err != nil {
		res.Meta.Cause = pe.Err.Error()
	}
	log.Error("internal error", "error", pe.Err)
	return http.StatusInternalServerError, res
}

// normalize lifts bare errors into the taxonomy. A raw deadline counts as an
// upstream timeout; anything unrecognised is internal.
func (e *ErrorClassifier) normalize(err error, meta RequestMeta) *model.PipelineError {
	var pe *model.PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	switch model.KindOf(err) {
	case model.KindUpstream:
		return model.NewUpstreamError("pipeline", meta.Intent, err, "")
	case model.KindValidation:
		return &model.PipelineError{Kind: model.KindValidation, Op: "pipeline", Err: err}
	case model.KindPermission:
		return &model.PipelineError{Kind: model.KindPermission, Op: "pipeline", Err: err, Intent: meta.Intent}
	case model.KindEntityResolution:
		return &model.PipelineError{Kind: model.KindEntityResolution, Op: "pipeline", Err: err}
	case model.KindRateLimit:
		return &model.PipelineError{Kind: model.KindRateLimit, Op: "pipeline", Err: err}
	}
	return &model.PipelineError{Kind: model.KindInternal, Op: "pipeline", Err: err}
}

func (e *ErrorClassifier) permissionText(role model.Role, pe *model.PipelineError) string {
	what := strings.ReplaceAll(string(pe.Intent), "_", " ")
	if spec, ok := e.registry[pe.Intent]; ok && spec.Description != "" {
		what = strings.ToLower(spec.Description)
	}
	var allowed []string
	for _, in := range pe.Allowed {
		if spec, ok := e.registry[in]; ok && in != model.IntentHelp {
			allowed = append(allowed, strings.ToLower(spec.Description))
		}
	}
	text := fmt.Sprintf("Your role (%s) is not allowed to %s.", role, what)
	if len(allowed) > 0 {
		text += " You can: " + strings.Join(allowed, "; ") + "."
	}
	return text
}

func validationText(pe *model.PipelineError) string {
	if len(pe.Threats) > 0 {
		kinds := make([]string, len(pe.Threats))
		for i, t := range pe.Threats {
			kinds[i] = strings.ReplaceAll(string(t), "_", " ")
		}
		return "Your message was blocked because it looks unsafe (" + strings.Join(kinds, ", ") + "). Please rephrase it."
	}
	if len(pe.Fields) > 0 {
		parts := make([]string, len(pe.Fields))
		for i, f := range pe.Fields {
			parts[i] = f.Field + " " + f.Message
		}
		return "The request is invalid: " + strings.Join(parts, "; ") + "."
	}
	return "The request is invalid."
}

func retryAfterSeconds(d time.Duration) int64 {
	s := int64(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}
