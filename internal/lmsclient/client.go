package lmsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"

	"lms-agent/config"
	"lms-agent/internal/breaker"
	"lms-agent/model"
)

const maxResponseBytes = 4 << 20

// Client is the HTTP LmsClient. It never retries; repeated failures open the breaker.
type Client struct {
	baseURL string
	token   string
	httpCli *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(cfg config.LMSConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpCli: &http.Client{Timeout: timeout},
		breaker: breaker.New("lms", cfg.Breaker, logger),
	}
}

type enrollBody struct {
	UserIDs  []string             `json:"user_ids,omitempty"`
	GroupIDs []string             `json:"group_ids,omitempty"`
	CourseID string               `json:"course_id"`
	Options  *model.EnrollOptions `json:"options,omitempty"`
}

func (c *Client) GetUserEnrollments(ctx context.Context, userID string) ([]model.Enrollment, error) {
	var out []model.Enrollment
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/enrollments", nil, &out)
	return out, err
}

func (c *Client) EnrollUsers(ctx context.Context, userIDs []string, courseID string, opts model.EnrollOptions) (*model.EnrollmentResult, error) {
	var out model.EnrollmentResult
	err := c.do(ctx, http.MethodPost, "/enrollments", enrollBody{UserIDs: userIDs, CourseID: courseID, Options: &opts}, &out)
	return &out, err
}

func (c *Client) EnrollGroups(ctx context.Context, groupIDs []string, courseID string, opts model.EnrollOptions) (*model.EnrollmentResult, error) {
	var out model.EnrollmentResult
	err := c.do(ctx, http.MethodPost, "/enrollments/groups", enrollBody{GroupIDs: groupIDs, CourseID: courseID, Options: &opts}, &out)
	return &out, err
}

func (c *Client) UnenrollUsers(ctx context.Context, userIDs []string, courseID string) (*model.EnrollmentResult, error) {
	var out model.EnrollmentResult
	err := c.do(ctx, http.MethodPost, "/enrollments/unenroll", enrollBody{UserIDs: userIDs, CourseID: courseID}, &out)
	return &out, err
}

func (c *Client) UpdateEnrollments(ctx context.Context, userIDs []string, courseID string, opts model.EnrollOptions) (*model.EnrollmentResult, error) {
	var out model.EnrollmentResult
	err := c.do(ctx, http.MethodPatch, "/enrollments", enrollBody{UserIDs: userIDs, CourseID: courseID, Options: &opts}, &out)
	return &out, err
}

func (c *Client) GetEnrollmentStats(ctx context.Context, courseID string) (*model.EnrollmentStats, error) {
	var out model.EnrollmentStats
	err := c.do(ctx, http.MethodGet, "/courses/"+url.PathEscape(courseID)+"/enrollment-stats", nil, &out)
	return &out, err
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]model.Entity, error) {
	return c.search(ctx, "/users", model.EntityUser, query)
}

func (c *Client) SearchCourses(ctx context.Context, query string) ([]model.Entity, error) {
	return c.search(ctx, "/courses", model.EntityCourse, query)
}

func (c *Client) SearchLearningPlans(ctx context.Context, query string) ([]model.Entity, error) {
	return c.search(ctx, "/learning-plans", model.EntityLearningPlan, query)
}

func (c *Client) SearchSessions(ctx context.Context, query string) ([]model.Entity, error) {
	return c.search(ctx, "/sessions", model.EntitySession, query)
}

func (c *Client) SearchGroups(ctx context.Context, query string) ([]model.Entity, error) {
	return c.search(ctx, "/groups", model.EntityGroup, query)
}

func (c *Client) search(ctx context.Context, path string, kind model.EntityKind, query string) ([]model.Entity, error) {
	var out []model.Entity
	if err := c.do(ctx, http.MethodGet, path+"?search="+url.QueryEscape(query), nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Kind = kind
	}
	return out, nil
}

// do sends one request through the breaker and decodes a 2xx body into out.
// Error text carries the method, path and status only, never the response body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		bs, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = bs
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, payload)
	})
	if err != nil {
		return breaker.Wrap("lms", err)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %w", model.ErrUpstream, method, path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", model.ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %w", model.ErrUpstream, method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s %s returned status %d", model.ErrUpstream, method, path, resp.StatusCode)
	}
	return data, nil
}

var _ model.LmsClient = (*Client)(nil)
