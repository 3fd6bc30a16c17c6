package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"lms-agent/config"
	"lms-agent/internal/breaker"
	"lms-agent/model"
)

const maxResponseBytes = 1 << 20

// Client calls the intent classification service over HTTP.
type Client struct {
	baseURL string
	httpCli *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(cfg config.ClassifierConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpCli: &http.Client{
			Timeout: timeout,
		},
		breaker: breaker.New("classifier", cfg.Breaker, logger),
	}
}

type historyItem struct {
	Intent   model.Intent   `json:"intent"`
	Entities map[string]any `json:"entities,omitempty"`
}

type classifyRequest struct {
	Message   string        `json:"message"`
	SessionID string        `json:"session_id,omitempty"`
	Role      model.Role    `json:"role,omitempty"`
	History   []historyItem `json:"history,omitempty"`
}

type classifyResponse struct {
	Intent        string         `json:"intent"`
	Entities      map[string]any `json:"entities"`
	Confidence    float64        `json:"confidence"`
	MissingFields []string       `json:"missing_fields"`
}

// Classify posts the sanitized message and the bounded request log to /classify.
// The intent string is passed through unchecked; catalog membership is decided by the caller.
func (c *Client) Classify(ctx context.Context, message string, cc *model.ChatContext) (*model.Classification, error) {
	req := classifyRequest{Message: message}
	if cc != nil {
		req.SessionID = cc.SessionID
		req.Role = cc.Role
		for _, rec := range cc.PreviousRequests {
			req.History = append(req.History, historyItem{Intent: rec.Intent, Entities: rec.Entities})
		}
	}

	bs, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.post(ctx, "/classify", bs)
	})
	if err != nil {
		return nil, breaker.Wrap("classifier", err)
	}

	var cr classifyResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("%w: decode classifier response: %w", model.ErrUpstream, err)
	}
	if cr.Entities == nil {
		cr.Entities = map[string]any{}
	}
	return &model.Classification{
		Intent:        model.Intent(cr.Intent),
		Entities:      cr.Entities,
		Confidence:    cr.Confidence,
		MissingFields: cr.MissingFields,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read classifier response: %w", model.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: classifier returned status %d", model.ErrUpstream, resp.StatusCode)
	}
	return data, nil
}

var _ model.IntentClassifier = (*Client)(nil)
