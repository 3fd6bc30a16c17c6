package actions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lms-agent/model"
)

// Caller runs LMS calls for one request. Every call gets its own deadline and is
// recorded by name in call order.
type Caller struct {
	lms     model.LmsClient
	timeout time.Duration

	mu     sync.Mutex
	called []string
}

func NewCaller(lms model.LmsClient, timeout time.Duration) *Caller {
	return &Caller{lms: lms, timeout: timeout}
}

// Called returns the names of the LMS functions invoked so far.
func (c *Caller) Called() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.called...)
}

func (c *Caller) record(name string) {
	c.mu.Lock()
	c.called = append(c.called, name)
	c.mu.Unlock()
}

// Call invokes fn against the LMS under the caller's per-call timeout.
// Errors are returned wrapped with the function name; they are never retried.
func Call[T any](ctx context.Context, c *Caller, name string, fn func(context.Context, model.LmsClient) (T, error)) (T, error) {
	c.record(name)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	v, err := fn(ctx, c.lms)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
