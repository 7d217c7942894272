package announcer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFlavorReturnsCompletionText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, defaultModel, req.Model)
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "The Matrix")

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Knock knock, Neo."}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI("test-key", zap.NewNop()).WithEndpoint(srv.URL)
	text, err := o.Flavor(context.Background(), "The Matrix")
	require.NoError(t, err)
	assert.Equal(t, "Knock knock, Neo.", text)
}

func TestFlavorErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o := NewOpenAI("test-key", zap.NewNop()).WithEndpoint(srv.URL)
	_, err := o.Flavor(context.Background(), "The Matrix")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestFlavorEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	o := NewOpenAI("test-key", zap.NewNop()).WithEndpoint(srv.URL)
	_, err := o.Flavor(context.Background(), "The Matrix")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestFlavorHonorsContextDeadline(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel the request context; otherwise this
		// handler never unblocks and srv.Close deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	o := NewOpenAI("test-key", zap.NewNop()).WithEndpoint(srv.URL)
	_, err := o.Flavor(ctx, "The Matrix")
	require.Error(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("request never reached the server")
	}
}
