package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

func TestNew_RequiresKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Model: "m"})
	require.ErrorIs(t, err, extract.ErrCapabilityUnavailable)

	_, err = New(Config{APIKey: "k"})
	require.Error(t, err)
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"name\": \"Jane\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	t.Cleanup(srv.Close)

	client, err := New(Config{APIKey: "test-key", Model: "claude-test", MaxTokens: 256, BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), extract.ModelRequest{System: "be precise", Prompt: "extract"})
	require.NoError(t, err)
	require.Equal(t, `{"name": "Jane"}`, out)
	require.Equal(t, "claude-test", captured["model"])
	require.EqualValues(t, 256, captured["max_tokens"])
	require.NotNil(t, captured["system"])
}

func TestComplete_AuthFailureIsCapabilityError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	t.Cleanup(srv.Close)

	client, err := New(Config{APIKey: "bad", Model: "claude-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), extract.ModelRequest{Prompt: "extract"})
	require.ErrorIs(t, err, extract.ErrCapabilityUnavailable)
}
