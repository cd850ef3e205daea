package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/memevault/memevault/domain/meme"
	"github.com/stretchr/testify/require"
)

// embeddingServer returns an httptest.Server that mimics the OpenAI
// embeddings endpoint. The first failCount requests get an empty data array;
// later ones get one 3-dimensional vector per input whose first component
// is the input's length.
func embeddingServer(t *testing.T, counter *atomic.Int64, failCount int64) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := counter.Add(1)

		var body struct {
			Input any    `json:"input"`
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		var texts []string
		switch v := body.Input.(type) {
		case string:
			texts = []string{v}
		case []any:
			for _, item := range v {
				texts = append(texts, item.(string))
			}
		}

		var data []map[string]any
		usage := map[string]int{"prompt_tokens": 0, "total_tokens": 0}
		if n > failCount {
			data = make([]map[string]any, len(texts))
			for i, text := range texts {
				data[i] = map[string]any{
					"object":    "embedding",
					"index":     i,
					"embedding": []float64{float64(len(text)), 0.2, 0.3},
				}
			}
			usage = map[string]int{"prompt_tokens": len(texts) * 4, "total_tokens": len(texts) * 4}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  body.Model,
			"usage":  usage,
		})
	}))
}

func newTestEmbedder(url string, retries int) *OpenAIEmbedder {
	return NewOpenAIEmbedder(OpenAIConfig{
		APIKey:       "test-key",
		BaseURL:      url,
		Model:        "test-model",
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
	})
}

func TestOpenAIEmbedder_EmbedSingle(t *testing.T) {
	var counter atomic.Int64
	srv := embeddingServer(t, &counter, 0)
	defer srv.Close()

	vec, err := newTestEmbedder(srv.URL, 0).Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, vec, 3)
	require.InDelta(t, 5.0, vec[0], 1e-6)
	require.Equal(t, int64(1), counter.Load())
}

func TestOpenAIEmbedder_EmbedEmptyText(t *testing.T) {
	var counter atomic.Int64
	srv := embeddingServer(t, &counter, 0)
	defer srv.Close()

	_, err := newTestEmbedder(srv.URL, 0).Embed(context.Background(), "   ")
	require.ErrorIs(t, err, meme.ErrEmbed)
	require.Equal(t, int64(0), counter.Load(), "no HTTP request for empty input")
}

func TestOpenAIEmbedder_EmbedBatchPreservesOrder(t *testing.T) {
	var counter atomic.Int64
	srv := embeddingServer(t, &counter, 0)
	defer srv.Close()

	vecs, err := newTestEmbedder(srv.URL, 0).EmbedBatch(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	require.InDelta(t, 1.0, vecs[0][0], 1e-6)
	require.InDelta(t, 3.0, vecs[1][0], 1e-6)
	require.InDelta(t, 2.0, vecs[2][0], 1e-6)
	require.Equal(t, int64(1), counter.Load(), "one request per batch")
}

func TestOpenAIEmbedder_EmbedBatchEmpty(t *testing.T) {
	var counter atomic.Int64
	srv := embeddingServer(t, &counter, 0)
	defer srv.Close()

	vecs, err := newTestEmbedder(srv.URL, 0).EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, vecs)
	require.Equal(t, int64(0), counter.Load())
}

func TestOpenAIEmbedder_CancelledContext(t *testing.T) {
	var counter atomic.Int64
	srv := embeddingServer(t, &counter, 0)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEmbedder(srv.URL, 0).Embed(ctx, "hello")
	require.Error(t, err)
	require.ErrorIs(t, err, meme.ErrEmbed)
}

func TestOpenAIEmbedder_UpstreamFailureNotRetried(t *testing.T) {
	var counter atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[],"model":"","usage":{"prompt_tokens":0,"total_tokens":0}}`))
	}))
	defer srv.Close()

	_, err := newTestEmbedder(srv.URL, 3).Embed(context.Background(), "hello")
	require.ErrorIs(t, err, errUpstreamProviderFailure)
	require.ErrorIs(t, err, meme.ErrEmbed)
	require.Equal(t, int64(1), counter.Load())
}

func TestOpenAIEmbedder_EmptyResponseRetries(t *testing.T) {
	var counter atomic.Int64
	srv := embeddingServer(t, &counter, 2)
	defer srv.Close()

	vecs, err := newTestEmbedder(srv.URL, 3).EmbedBatch(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	require.Equal(t, int64(3), counter.Load(), "retried twice then succeeded")
}

func TestOpenAIEmbedder_EmptyResponseExhaustsRetries(t *testing.T) {
	var counter atomic.Int64
	srv := embeddingServer(t, &counter, 999)
	defer srv.Close()

	_, err := newTestEmbedder(srv.URL, 0).EmbedBatch(context.Background(), []string{"hello", "world"})
	require.ErrorIs(t, err, errEmbeddingCountMismatch)
}

func TestOpenAIEmbedder_ServerErrorWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestEmbedder(srv.URL, 2).Embed(context.Background(), "hello")
	require.ErrorIs(t, err, meme.ErrEmbed)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, http.StatusUnauthorized, perr.StatusCode())
	require.Equal(t, "embedding", perr.Operation())
}
