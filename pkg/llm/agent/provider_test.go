package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"voice-qa-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/answer", r.URL.Path)

		var req answerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "how tall is everest?", req.Question)
		require.Len(t, req.History, 1)
		assert.Equal(t, "system", req.History[0].Role)

		json.NewEncoder(w).Encode(answerResponse{Answer: "8849 m"})
	}))
	defer srv.Close()

	answer, err := NewAgentProvider(srv.URL).Chat(context.Background(), []llm.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "how tall is everest?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "8849 m", answer)
}

func TestAgentFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "client error is not retryable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "bad question", http.StatusBadRequest)
			},
			check: func(t *testing.T, err error) {
				var statusErr *llm.StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.False(t, statusErr.Retryable())
			},
		},
		{
			name: "empty answer",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"answer":""}`))
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, llm.ErrEmptyResponse)
			},
		},
		{
			name: "agent reported error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error":"index offline"}`))
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "index offline")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewAgentProvider(srv.URL).Chat(context.Background(), []llm.Message{{Role: "user", Content: "q"}})
			tt.check(t, err)
		})
	}
}
