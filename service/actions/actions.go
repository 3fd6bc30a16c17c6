package actions

import (
	"context"
	"errors"
	"fmt"

	"lms-agent/model"
)

// Request is everything a handler may read. Resolved holds directory records
// for every entity the action table asked to resolve.
type Request struct {
	Intent       model.Intent
	Entities     map[string]any
	Resolved     map[string][]model.Entity
	Context      *model.ChatContext
	Capabilities []model.Capability
}

// Outcome is a completed action before composition.
type Outcome struct {
	Response string
	Data     any
}

// Handler executes one intent. Returned errors are LMS failures unless they are
// already a *model.PipelineError.
type Handler func(ctx context.Context, c *Caller, req Request) (*Outcome, error)

var errMissingEntity = errors.New("missing resolved entity")

func need(req Request, key string) (model.Entity, error) {
	e, ok := first(req.Resolved, key)
	if !ok {
		return model.Entity{}, fmt.Errorf("%w: %s", errMissingEntity, key)
	}
	return e, nil
}

func needAll(req Request, key string) ([]model.Entity, error) {
	ents := req.Resolved[key]
	if len(ents) == 0 {
		return nil, fmt.Errorf("%w: %s", errMissingEntity, key)
	}
	return ents, nil
}
