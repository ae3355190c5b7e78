package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscope/crmchat/internal/log"
	"github.com/leadscope/crmchat/internal/session"
)

func TestHealth(t *testing.T) {
	ts, store := newTestServer(t, &stubChatService{})
	store.Create()
	store.Create()

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "1.0.0", body.Version)
	assert.Equal(t, 2, body.ActiveChats)
	assert.Nil(t, body.Documents)
}

type fixedCounter struct{ n int64 }

func (c fixedCounter) Count(context.Context) (int64, error) { return c.n, nil }

func TestHealth_WithDocumentCount(t *testing.T) {
	store := session.New(log.NewNop())
	srv := NewServer(Config{Version: "1.0.0"}, store, &stubChatService{}, fixedCounter{n: 42}, log.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Documents)
	assert.EqualValues(t, 42, *body.Documents)
}
