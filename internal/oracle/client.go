package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"coldroute/internal/metrics"
	"coldroute/internal/model"
)

// Client calls an OpenAI-compatible chat completion endpoint and parses the
// strictly-typed JSON answer. It is safe for concurrent use.
type Client struct {
	session *http.Client
	baseURL string
	apiKey  string
	mdl     string
}

// ClientConfig configures the HTTP sequencer.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient validates the credential up front: a missing key means the whole
// run is doomed, and that should surface before the first batch, not during.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key is empty", ErrConfigMissing)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		session: &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		mdl:     cfg.Model,
	}, nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Sequence submits one vehicle/batch pair and returns the parsed stop
// sequence. Any shape violation is a hard failure for this batch; the payload
// is never partially trusted.
func (c *Client) Sequence(ctx context.Context, req SequenceRequest) (RawSequence, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return RawSequence{}, err
	}
	content, err := c.complete(ctx, prompt, true)
	if err != nil {
		metrics.OracleCalls.WithLabelValues("error").Inc()
		return RawSequence{}, err
	}
	seq, err := ParseSequence(content)
	if err != nil {
		metrics.OracleCalls.WithLabelValues("invalid").Inc()
		return RawSequence{}, err
	}
	metrics.OracleCalls.WithLabelValues("ok").Inc()
	return seq, nil
}

// Advise asks for savings suggestions over a finished plan. Callers treat
// any error as "no advice".
func (c *Client) Advise(ctx context.Context, trips []model.Trip, orders []model.Order) ([]model.Advice, error) {
	prompt, err := BuildAdvicePrompt(trips, orders)
	if err != nil {
		return nil, err
	}
	content, err := c.complete(ctx, prompt, false)
	if err != nil {
		return nil, err
	}
	var out []model.Advice
	if err := json.Unmarshal([]byte(stripFences(content)), &out); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, excerpt(content))
	}
	return out, nil
}

func (c *Client) complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	body := chatRequest{
		Model: c.mdl,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a route sequencing engine. You answer with machine-readable JSON only."},
			{Role: "user", Content: prompt},
		},
	}
	if jsonMode {
		body.ResponseFormat = &respFormat{Type: "json_object"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	})
	if err != nil {
		return "", fmt.Errorf("oracle call: %w", err)
	}
	defer resp.Body.Close()

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("%w: undecodable completion envelope", ErrInvalidResponse)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%w: completion has no choices", ErrInvalidResponse)
	}
	return cr.Choices[0].Message.Content, nil
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string { return fmt.Sprintf("status %d: %s", e.Code, e.Body) }

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return nil, &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// doWithRetry retries transient failures (network errors, 429, 5xx) with
// exponential backoff while respecting context cancellation.
func (c *Client) doWithRetry(ctx context.Context, makeReq func() (*http.Request, error)) (*http.Response, error) {
	const maxAttempts = 3
	backoff := 500 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := makeReq()
		if err != nil {
			return nil, fmt.Errorf("make request: %w", err)
		}
		resp, err := c.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		retry := false
		var he *httpStatusError
		if errors.As(err, &he) {
			switch he.Code {
			case 429, 500, 502, 503, 504:
				retry = true
			}
		}
		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}
		if !retry || attempt == maxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}

// ParseSequence decodes and schema-checks an oracle answer. Models sometimes
// wrap the object in a markdown fence despite instructions; the fence is the
// only repair ever applied.
func ParseSequence(content string) (RawSequence, error) {
	raw := stripFences(content)
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	var seq RawSequence
	if err := dec.Decode(&seq); err != nil {
		return RawSequence{}, fmt.Errorf("%w: %s", ErrInvalidResponse, excerpt(content))
	}
	if err := checkSequence(seq); err != nil {
		return RawSequence{}, fmt.Errorf("%w: %v (payload: %s)", ErrInvalidResponse, err, excerpt(content))
	}
	return seq, nil
}

func checkSequence(seq RawSequence) error {
	if _, err := model.ParseClock(seq.StartTime); err != nil {
		return fmt.Errorf("bad start_time: %v", err)
	}
	if seq.TotalKm < 0 {
		return fmt.Errorf("negative totaal_km %v", seq.TotalKm)
	}
	if len(seq.Stops) == 0 {
		return fmt.Errorf("empty stop list")
	}
	for i, s := range seq.Stops {
		switch s.Act {
		case "D", "B", "I", "R":
		default:
			return fmt.Errorf("stop %d: unknown act %q", i, s.Act)
		}
		if _, err := model.ParseClock(s.Arr); err != nil {
			return fmt.Errorf("stop %d: bad arr: %v", i, err)
		}
		if s.Dur < 0 {
			return fmt.Errorf("stop %d: negative dur %d", i, s.Dur)
		}
		if s.Km < 0 {
			return fmt.Errorf("stop %d: negative km %v", i, s.Km)
		}
		if s.Act == "D" && s.ID == "" {
			return fmt.Errorf("stop %d: delivery without id", i)
		}
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

// excerpt truncates a payload for log/diagnostic inclusion.
func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 160 {
		return s[:160] + "..."
	}
	return s
}
