package config

import (
	"errors"
	"fmt"
	"time"

	"lms-agent/model"
)

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error

	for _, role := range model.Roles {
		rule, ok := c.RateLimits[role]
		if !ok {
			errs = append(errs, fmt.Errorf("rate_limits: missing rule for role %q", role))
			continue
		}
		if rule.Capacity < 1 {
			errs = append(errs, fmt.Errorf("rate_limits.%s.capacity must be >= 1", role))
		}
		if rule.RefillPerSecond <= 0 {
			errs = append(errs, fmt.Errorf("rate_limits.%s.refill_per_second must be > 0", role))
			continue
		}
		// An evicted bucket comes back full, so it must have been able to refill anyway.
		full := time.Duration(float64(rule.Capacity) / rule.RefillPerSecond * float64(time.Second))
		if c.Limiter.IdleTTL < full {
			errs = append(errs, fmt.Errorf("limiter.idle_ttl %s is shorter than the %s refill time of role %q",
				c.Limiter.IdleTTL, full, role))
		}
	}
	for role := range c.RateLimits {
		if !role.Valid() {
			errs = append(errs, fmt.Errorf("rate_limits: unknown role %q", role))
		}
	}

	for role, intents := range c.Permissions {
		if !role.Valid() {
			errs = append(errs, fmt.Errorf("permissions: unknown role %q", role))
		}
		for _, in := range intents {
			if model.ParseIntent(string(in)) != in {
				errs = append(errs, fmt.Errorf("permissions.%s: unknown intent %q", role, in))
			}
		}
	}

	for _, in := range c.Dispatch.DestructiveIntents {
		if model.ParseIntent(string(in)) != in || in == model.IntentError || in == model.IntentHelp {
			errs = append(errs, fmt.Errorf("dispatch.destructive_intents: invalid intent %q", in))
		}
	}
	if c.Dispatch.ConfirmationTTL <= 0 {
		errs = append(errs, errors.New("dispatch.confirmation_ttl must be > 0"))
	}
	if c.Dispatch.HistoryLimit < 0 {
		errs = append(errs, errors.New("dispatch.history_limit must be >= 0"))
	}
	if c.Dispatch.FuzzyThreshold <= 0 || c.Dispatch.FuzzyThreshold > 1 {
		errs = append(errs, errors.New("dispatch.fuzzy_threshold must be in (0, 1]"))
	}
	if c.Dispatch.TieMargin < 0 || c.Dispatch.TieMargin >= 1 {
		errs = append(errs, errors.New("dispatch.tie_margin must be in [0, 1)"))
	}

	if c.Classifier.ConfidenceThreshold < 0 || c.Classifier.ConfidenceThreshold > 1 {
		errs = append(errs, errors.New("classifier.confidence_threshold must be in [0, 1]"))
	}
	if c.Classifier.Timeout <= 0 {
		errs = append(errs, errors.New("classifier.timeout must be > 0"))
	}
	if c.LMS.Timeout <= 0 {
		errs = append(errs, errors.New("lms.timeout must be > 0"))
	}
	if c.Validation.MaxMessageLength < 1 {
		errs = append(errs, errors.New("validation.max_message_length must be >= 1"))
	}
	if c.Validation.MaxRepeatedRun < 2 {
		errs = append(errs, errors.New("validation.max_repeated_run must be >= 2"))
	}
	if c.Server.MaxBodyBytes < 1 {
		errs = append(errs, errors.New("server.max_body_bytes must be >= 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", model.ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}
