// Package llm provides a chat completion client for OpenAI-compatible APIs.
// It supports blocking completion and incremental streaming over SSE.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrGeneration indicates the completion provider failed.
var ErrGeneration = errors.New("generation failed")

// Chunk is one increment of a streamed completion. A non-nil Err means the
// stream failed; it is the last value sent before the channel closes. Once
// the consumer's context is cancelled the error chunk is delivered only if
// buffer space remains.
type Chunk struct {
	Content string
	Err     error
}

// Config configures the completion client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	timeout     time.Duration
	client      *http.Client
}

// streamBuffer bounds how far the producer can run ahead of a slow consumer.
const streamBuffer = 32

// NewClient creates a completion client. Timeout applies to blocking
// completions; streams are bounded by the caller's context instead.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		client:      &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type streamDelta struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Complete runs a blocking completion for prompt and returns the full text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrGeneration, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	return parsed.Choices[0].Message.Content, nil
}

// CompleteStream starts a streaming completion and returns a channel of
// chunks. The channel is closed when the stream ends; if the stream fails or
// the context is cancelled mid-stream, the last chunk carries the error.
// The setup request itself failing is reported as a direct error instead.
func (c *Client) CompleteStream(ctx context.Context, prompt string) (<-chan Chunk, error) {
	resp, err := c.post(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	out := make(chan Chunk, streamBuffer)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}

			var delta streamDelta
			if err := json.Unmarshal([]byte(payload), &delta); err != nil {
				select {
				case out <- Chunk{Err: fmt.Errorf("%w: decode stream: %v", ErrGeneration, err)}:
				case <-ctx.Done():
				}
				return
			}
			if len(delta.Choices) == 0 || delta.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case out <- Chunk{Content: delta.Choices[0].Delta.Content}:
			case <-ctx.Done():
				// The consumer may have stopped draining; never block on
				// the terminal chunk.
				select {
				case out <- Chunk{Err: ctx.Err()}:
				default:
				}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				select {
				case out <- Chunk{Err: ctx.Err()}:
				default:
				}
				return
			}
			select {
			case out <- Chunk{Err: fmt.Errorf("%w: read stream: %v", ErrGeneration, err)}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

func (c *Client) post(ctx context.Context, prompt string, stream bool) (*http.Response, error) {
	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d: %s", ErrGeneration, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}
