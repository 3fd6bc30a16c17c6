package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lms-agent/internal/logger"
	"lms-agent/model"
	"lms-agent/utils"
)

type DecisionType int

const (
	// DecisionClassified means the message went through the classifier.
	DecisionClassified DecisionType = iota
	// DecisionConfirm answers the session's pending confirmation.
	DecisionConfirm
	// DecisionNothingPending is a yes/no reply with no pending confirmation.
	DecisionNothingPending
)

type DecisionResult struct {
	Type           DecisionType
	Affirmed       bool
	Classification *model.Classification
}

// DecisionLayer decides whether a turn answers a pending confirmation or needs classification.
type DecisionLayer struct {
	classifier   model.IntentClassifier
	typeClassify *TypeClassify
	timeout      time.Duration
	logger       *slog.Logger
}

func NewDecisionLayer(classifier model.IntentClassifier, threshold float64, timeout time.Duration, logger *slog.Logger) *DecisionLayer {
	return &DecisionLayer{
		classifier:   classifier,
		typeClassify: NewTypeClassify(threshold, logger),
		timeout:      timeout,
		logger:       logger.With("component", "decision_layer"),
	}
}

// Decide classifies a sanitized message. A yes/no reply never reaches the classifier.
func (d *DecisionLayer) Decide(ctx context.Context, message string, cc *model.ChatContext) (*DecisionResult, error) {
	switch reply := utils.ParseConfirmation(message); reply {
	case utils.ReplyYes, utils.ReplyNo:
		if cc.PendingConfirmation == nil {
			d.logger.Debug("confirmation reply without pending action", "session", cc.SessionID)
			return &DecisionResult{Type: DecisionNothingPending}, nil
		}
		d.logger.Debug("confirmation reply", "session", cc.SessionID, "affirmed", reply == utils.ReplyYes)
		return &DecisionResult{Type: DecisionConfirm, Affirmed: reply == utils.ReplyYes}, nil
	}

	cctx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	raw, err := d.classifier.Classify(cctx, message, cc)
	if err != nil {
		d.logger.Warn("classifier failed", "session", cc.SessionID, "preview", logger.Preview(message), "error", err)
		pe := model.NewUpstreamError("classify", "", err,
			"I couldn't interpret your request right now. Please try again in a moment.")
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			pe.Timeout = true
		}
		return nil, pe
	}

	c := d.typeClassify.Classify(raw)
	d.logger.Info("intent classified",
		"session", cc.SessionID, "intent", c.Intent, "confidence", c.Confidence)
	return &DecisionResult{Type: DecisionClassified, Classification: c}, nil
}
