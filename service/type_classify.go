package service

import (
	"log/slog"

	"lms-agent/model"
)

// TypeClassify maps raw classifier output onto the closed intent catalog.
type TypeClassify struct {
	threshold float64
	logger    *slog.Logger
}

func NewTypeClassify(threshold float64, logger *slog.Logger) *TypeClassify {
	return &TypeClassify{threshold: threshold, logger: logger.With("component", "type_classify")}
}

// Classify returns a copy of c whose intent is in the catalog. Unknown intents
// and confidence below the threshold become IntentError; entities are dropped then.
func (r *TypeClassify) Classify(c *model.Classification) *model.Classification {
	if c == nil {
		return &model.Classification{Intent: model.IntentError, Entities: map[string]any{}}
	}

	intent := model.ParseIntent(string(c.Intent))
	if intent == model.IntentError && c.Intent != model.IntentError {
		r.logger.Info("intent outside catalog", "intent", string(c.Intent))
	}
	if intent != model.IntentError && c.Confidence < r.threshold {
		r.logger.Info("intent below confidence threshold",
			"intent", intent, "confidence", c.Confidence, "threshold", r.threshold)
		intent = model.IntentError
	}

	out := &model.Classification{
		Intent:     intent,
		Confidence: c.Confidence,
		Entities:   map[string]any{},
	}
	if intent == model.IntentError {
		return out
	}
	for k, v := range c.Entities {
		out.Entities[k] = v
	}
	out.MissingFields = append(out.MissingFields, c.MissingFields...)
	return out
}
