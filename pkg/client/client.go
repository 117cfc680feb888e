// Package client provides a small HTTP client for the decision engine,
// including poll-until-terminal helpers for the asynchronous decision flow.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrDecisionPending is returned by AwaitDecision when the poll policy is
// exhausted before the job reaches a terminal state.
var ErrDecisionPending = errors.New("decision still pending")

// Incident is the submission payload.
type Incident struct {
	Service  string         `json:"service"`
	Metric   string         `json:"metric"`
	DeltaPct float64        `json:"delta_pct"`
	Severity string         `json:"severity,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// TraceEntry is one step of the engine's reasoning trace.
type TraceEntry struct {
	Agent     string    `json:"agent"`
	Thought   string    `json:"thought"`
	Timestamp time.Time `json:"timestamp"`
}

// Impact estimates the operational value of the decision.
type Impact struct {
	EstimatedTimeSavedMinutes   float64 `json:"estimated_time_saved_minutes"`
	EstimatedRiskReductionScore float64 `json:"estimated_risk_reduction_score"`
}

// Decision is the finalized engine output.
type Decision struct {
	FinalDecision  string       `json:"final_decision"`
	Confidence     float64      `json:"confidence"`
	Impact         Impact       `json:"impact"`
	ReasoningTrace []TraceEntry `json:"reasoning_trace"`
}

// ErrorInfo is the failure reason attached to a failed job.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// DecisionStatus is the polled view of a decision job.
type DecisionStatus struct {
	ID          string          `json:"id"`
	State       string          `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
	Result      json.RawMessage `json:"result"`
	Confidence  *float64        `json:"confidence,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
	Error       *ErrorInfo      `json:"error,omitempty"`
}

// Terminal reports whether the job has finished, successfully or not.
func (s *DecisionStatus) Terminal() bool {
	return s.State == "completed" || s.State == "failed"
}

// Decision decodes the result payload for a completed job.
func (s *DecisionStatus) Decision() (*Decision, error) {
	if s.State != "completed" {
		return nil, fmt.Errorf("job %s is %s, not completed", s.ID, s.State)
	}
	var dec Decision
	if err := json.Unmarshal(s.Result, &dec); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	return &dec, nil
}

// PollPolicy controls AwaitDecision's retry cadence.
type PollPolicy struct {
	Interval    time.Duration
	MaxInterval time.Duration
	MaxAttempts int
	MaxElapsed  time.Duration
}

// DefaultPollPolicy polls every second for up to twenty attempts.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    time.Second,
		MaxInterval: 5 * time.Second,
		MaxAttempts: 20,
	}
}

// Client talks to a decision engine instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     PollPolicy
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithPollPolicy replaces the default poll policy.
func WithPollPolicy(p PollPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// New creates a Client for the engine at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		policy:     DefaultPollPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit posts an incident and returns the new job ID.
func (c *Client) Submit(ctx context.Context, inc Incident) (string, error) {
	body, err := json.Marshal(inc)
	if err != nil {
		return "", fmt.Errorf("encode incident: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/incidents", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit incident: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", apiError(resp)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	return out.ID, nil
}

// GetDecision fetches the current status of a job.
func (c *Client) GetDecision(ctx context.Context, id string) (*DecisionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/decisions/"+id, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get decision: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var status DecisionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode decision status: %w", err)
	}
	return &status, nil
}

// AwaitDecision polls until the job reaches a terminal state or the poll
// policy gives up, in which case it returns ErrDecisionPending with the last
// observed status.
func (c *Client) AwaitDecision(ctx context.Context, id string) (*DecisionStatus, error) {
	policy := c.policy
	if policy.Interval <= 0 {
		policy = DefaultPollPolicy()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.Interval
	bo.MaxInterval = policy.MaxInterval
	if bo.MaxInterval < bo.InitialInterval {
		bo.MaxInterval = bo.InitialInterval
	}
	bo.MaxElapsedTime = policy.MaxElapsed

	var wrapped backoff.BackOff = bo
	if policy.MaxAttempts > 0 {
		wrapped = backoff.WithMaxRetries(bo, uint64(policy.MaxAttempts-1))
	}
	wrapped = backoff.WithContext(wrapped, ctx)

	var last *DecisionStatus
	err := backoff.Retry(func() error {
		status, err := c.GetDecision(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}
		last = status
		if !status.Terminal() {
			return ErrDecisionPending
		}
		return nil
	}, wrapped)
	if err != nil {
		if errors.Is(err, ErrDecisionPending) && last != nil {
			return last, ErrDecisionPending
		}
		return last, err
	}
	return last, nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error ErrorInfo `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Code != "" {
		return fmt.Errorf("api %d %s: %s", resp.StatusCode, body.Error.Code, body.Error.Message)
	}
	return fmt.Errorf("api %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
