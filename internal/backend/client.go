package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/silverfisk/rants/internal/models"
	"github.com/silverfisk/rants/internal/observability"
)

// HTTPClient is the concrete Backend implementation: an OpenAI-compatible
// chat-completions client over net/http, with the retry/backoff policy from
// spec §4.3.
type HTTPClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Retry      RetryConfig
	// Role names this client's routing role ("generator", "tool_compiler",
	// "vision") for the client span's llm.role attribute. Optional; empty
	// falls back to "backend" in traces.
	Role string
	// Tracer, when set, emits a client span around every Complete/Stream
	// call (spec §4.3 / SPEC_FULL.md observability). A nil Tracer is a
	// no-op, matching observability.Tracer's nil-safety.
	Tracer *observability.Tracer
}

// NewHTTPClient builds a client targeting baseURL with the given retry
// policy. A zero-value http.Client field is populated with a sane timeout.
func NewHTTPClient(baseURL, apiKey string, retry RetryConfig) *HTTPClient {
	timeout := retry.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
		Retry:      retry,
	}
}

func (c *HTTPClient) role() string {
	if c.Role != "" {
		return c.Role
	}
	return "backend"
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete performs a non-streaming completion with retry on transient
// upstream failures.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (*Result, error) {
	ctx, span := c.Tracer.TraceLLMRequest(ctx, c.role(), req.Model)
	defer span.End()

	result, err := c.complete(ctx, req)
	if err != nil {
		c.Tracer.RecordError(span, err)
	}
	return result, err
}

func (c *HTTPClient) complete(ctx context.Context, req Request) (*Result, error) {
	body := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		Stream:      false,
	}

	var lastErr error
	maxAttempts := c.Retry.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, status, err := c.doRequest(ctx, body)
		if err == nil {
			var parsed chatResponse
			if decodeErr := json.Unmarshal(resp, &parsed); decodeErr != nil {
				return nil, fmt.Errorf("decode upstream response: %w", decodeErr)
			}
			text := ""
			if len(parsed.Choices) > 0 {
				text = parsed.Choices[0].Message.Content
			}
			return &Result{
				Text:         text,
				InputTokens:  parsed.Usage.PromptTokens,
				OutputTokens: parsed.Usage.CompletionTokens,
			}, nil
		}

		lastErr = err
		if (status != 0 && !isRetryableStatus(status)) || attempt == maxAttempts {
			break
		}
		if sleepErr := sleepOrCancel(ctx, backoffDelay(c.Retry, attempt)); sleepErr != nil {
			return nil, sleepErr
		}
	}

	return nil, upstreamError(lastErr)
}

// Stream performs a streaming completion. Only the initial connection is
// retried; once the stream starts, a mid-flight failure surfaces as a
// Chunk with Err set.
func (c *HTTPClient) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	spanCtx, span := c.Tracer.TraceLLMRequest(ctx, c.role(), req.Model)

	body := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		Stream:      true,
	}

	var httpResp *http.Response
	var lastErr error
	maxAttempts := c.Retry.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, status, err := c.openStream(spanCtx, body)
		if err == nil {
			httpResp = resp
			break
		}
		lastErr = err
		if (status != 0 && !isRetryableStatus(status)) || attempt == maxAttempts {
			err := upstreamError(lastErr)
			c.Tracer.RecordError(span, err)
			span.End()
			return nil, err
		}
		if sleepErr := sleepOrCancel(spanCtx, backoffDelay(c.Retry, attempt)); sleepErr != nil {
			span.End()
			return nil, sleepErr
		}
	}

	out := make(chan Chunk)
	go func() {
		defer span.End()
		defer close(out)
		defer httpResp.Body.Close()
		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				out <- Chunk{Done: true, Err: ctx.Err()}
				return
			default:
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				out <- Chunk{Done: true}
				return
			}
			var parsed chatResponse
			if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
				continue
			}
			if len(parsed.Choices) == 0 {
				continue
			}
			delta := parsed.Choices[0].Delta.Content
			if delta != "" {
				out <- Chunk{Delta: delta}
			}
		}
		if err := scanner.Err(); err != nil {
			c.Tracer.RecordError(span, err)
			out <- Chunk{Done: true, Err: err}
			return
		}
		out <- Chunk{Done: true}
	}()

	return out, nil
}

func (c *HTTPClient) doRequest(ctx context.Context, body chatRequest) ([]byte, int, error) {
	resp, status, err := c.post(ctx, body)
	if err != nil {
		return nil, status, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, status, err
	}
	if status >= 400 {
		return nil, status, fmt.Errorf("upstream status %d: %s", status, truncate(string(data), 512))
	}
	return data, status, nil
}

func (c *HTTPClient) openStream(ctx context.Context, body chatRequest) (*http.Response, int, error) {
	resp, status, err := c.post(ctx, body)
	if err != nil {
		return nil, status, err
	}
	if status >= 400 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, status, fmt.Errorf("upstream status %d: %s", status, truncate(string(data), 512))
	}
	return resp, status, nil
}

func (c *HTTPClient) post(ctx context.Context, body chatRequest) (*http.Response, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, 0, err // connection error: status 0, always retryable by caller
	}
	return resp, resp.StatusCode, nil
}

func upstreamError(err error) error {
	if err == nil {
		return nil
	}
	return models.NewGatewayError(models.ErrorUpstream, err.Error())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
