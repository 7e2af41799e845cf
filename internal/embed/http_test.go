package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbhalerao/codesmriti/internal/errors"
)

func fastRetry() errors.RetryConfig {
	return errors.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func embedServer(t *testing.T, dims int, failures *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures != nil && failures.Add(-1) >= 0 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range req.Input {
			v := make([]float32, dims)
			v[i%dims] = 1
			resp.Embeddings[i] = v
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPEmbedderRoundTrip(t *testing.T) {
	srv := embedServer(t, 8, nil)
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{Host: srv.URL, Model: "m", Dimensions: 8, Retry: fastRetry()})
	require.NoError(t, err)
	defer e.Close()

	vectors, err := e.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 8)
}

func TestHTTPEmbedderRetriesTransientFailures(t *testing.T) {
	var failures atomic.Int32
	failures.Store(2)
	srv := embedServer(t, 8, &failures)
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{Host: srv.URL, Model: "m", Dimensions: 8, Retry: fastRetry()})
	require.NoError(t, err)
	defer e.Close()

	vectors, err := e.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err, "two 503s then success within retry budget")
	assert.Len(t, vectors, 1)
}

func TestHTTPEmbedderRejectsWrongDims(t *testing.T) {
	srv := embedServer(t, 4, nil)
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{Host: srv.URL, Model: "m", Dimensions: 8, Retry: fastRetry()})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
}

func TestHTTPEmbedderClosedErrors(t *testing.T) {
	srv := embedServer(t, 8, nil)
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{Host: srv.URL, Model: "m", Dimensions: 8})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.EmbedBatch(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestHTTPEmbedderEmptyBatch(t *testing.T) {
	e, err := NewHTTPEmbedder(HTTPConfig{Host: "http://localhost:0", Model: "m", Dimensions: 8})
	require.NoError(t, err)
	defer e.Close()

	vectors, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
