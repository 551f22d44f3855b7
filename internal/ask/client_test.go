package ask

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAsk_RelaysAnswer(t *testing.T) {
	var gotQuestion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotQuestion = req.Question
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"42"}`))
	}))
	defer srv.Close()

	answer, err := New(srv.URL, zap.NewNop()).Ask(context.Background(), "meaning of life?")
	require.NoError(t, err)
	require.Equal(t, "meaning of life?", gotQuestion)
	require.JSONEq(t, `{"answer":"42"}`, string(answer))
}

func TestAsk_RetriesOnServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"answer":"ok"}`))
	}))
	defer srv.Close()

	answer, err := New(srv.URL, zap.NewNop()).Ask(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.JSONEq(t, `{"answer":"ok"}`, string(answer))
}

func TestAsk_ClientErrorIsNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`bad question`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, zap.NewNop()).Ask(context.Background(), "q")
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestAsk_GivesUpAfterRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, zap.NewNop()).Ask(context.Background(), "q")
	require.Error(t, err)
	require.Equal(t, retryMaxRetries+1, attempts)
}
