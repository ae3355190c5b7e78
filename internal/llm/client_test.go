package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func completionServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Complete(t *testing.T) {
	var gotReq completionRequest
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "There are 3 leads in Berlin."}},
			},
		})
	})

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4o-mini"})

	text, err := c.Complete(context.Background(), "How many leads in Berlin?")
	require.NoError(t, err)
	assert.Equal(t, "There are 3 leads in Berlin.", text)
	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	assert.False(t, gotReq.Stream)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
}

func TestClient_CompleteServerError(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busy", http.StatusBadGateway)
	})

	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.Complete(context.Background(), "question")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_CompleteEmptyChoices(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.Complete(context.Background(), "question")
	assert.ErrorIs(t, err, ErrGeneration)
}

// writeStreamDelta writes one SSE data line in OpenAI stream format.
func writeStreamDelta(w http.ResponseWriter, content string) {
	payload, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"delta": map[string]any{"content": content}},
		},
	})
	fmt.Fprintf(w, "data: %s\n\n", payload)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func TestClient_CompleteStream(t *testing.T) {
	var gotReq completionRequest
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "text/event-stream")

		writeStreamDelta(w, "The top ")
		writeStreamDelta(w, "lead is ")
		writeStreamDelta(w, "Acme Corp.")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	c := NewClient(Config{BaseURL: srv.URL, Model: "gpt-4o-mini"})

	stream, err := c.CompleteStream(context.Background(), "top lead?")
	require.NoError(t, err)

	var parts []string
	for chunk := range stream {
		require.NoError(t, chunk.Err)
		parts = append(parts, chunk.Content)
	}
	assert.True(t, gotReq.Stream)
	assert.Equal(t, []string{"The top ", "lead is ", "Acme Corp."}, parts)
	assert.Equal(t, "The top lead is Acme Corp.", strings.Join(parts, ""))
}

func TestClient_CompleteStreamSetupFailure(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	})

	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.CompleteStream(context.Background(), "question")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestClient_CompleteStreamMalformedPayload(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeStreamDelta(w, "good chunk")
		fmt.Fprint(w, "data: {not json\n\n")
	})

	c := NewClient(Config{BaseURL: srv.URL})

	stream, err := c.CompleteStream(context.Background(), "question")
	require.NoError(t, err)

	var contents []string
	var streamErr error
	for chunk := range stream {
		if chunk.Err != nil {
			streamErr = chunk.Err
			break
		}
		contents = append(contents, chunk.Content)
	}
	assert.Equal(t, []string{"good chunk"}, contents)
	require.Error(t, streamErr)
	assert.ErrorIs(t, streamErr, ErrGeneration)

	// Channel must close after the error chunk.
	_, open := <-stream
	assert.False(t, open)
}

func TestClient_CompleteStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeStreamDelta(w, "partial ")
		writeStreamDelta(w, "answer")
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewClient(Config{BaseURL: srv.URL})

	stream, err := c.CompleteStream(ctx, "question")
	require.NoError(t, err)

	var contents []string
	var streamErr error
	deadline := time.After(5 * time.Second)
	for streamErr == nil {
		select {
		case chunk, open := <-stream:
			if !open {
				t.Fatal("stream closed without error chunk")
			}
			if chunk.Err != nil {
				streamErr = chunk.Err
				break
			}
			contents = append(contents, chunk.Content)
			if len(contents) == 2 {
				cancel()
			}
		case <-deadline:
			t.Fatal("timed out waiting for cancellation to surface")
		}
	}
	assert.Equal(t, []string{"partial ", "answer"}, contents)
	assert.ErrorIs(t, streamErr, context.Canceled)
}

func TestClient_CompleteStreamCancellationWithFullBuffer(t *testing.T) {
	// A consumer that cancels and never drains must not strand the producer
	// on a blocking send of the terminal error chunk.
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 3*streamBuffer; i++ {
			writeStreamDelta(w, "chunk ")
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.CompleteStream(ctx, "question")
	require.NoError(t, err)

	// Let the producer fill the buffer and block, then cancel without ever
	// reading a chunk.
	time.Sleep(100 * time.Millisecond)
	cancel()
}
