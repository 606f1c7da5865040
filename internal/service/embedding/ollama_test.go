package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOllamaServer(t *testing.T, dims int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		resp := ollamaEmbedResponse{}
		for i := range req.Input {
			vec := make([]float32, dims)
			vec[0] = float32(len(req.Input[i]))
			resp.Embeddings = append(resp.Embeddings, vec)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbed(t *testing.T) {
	srv := newOllamaServer(t, 1024, nil)
	p := NewOllamaProvider(srv.URL, "mxbai-embed-large", 1024)
	assert.Equal(t, 1024, p.Dimensions())

	vec, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, vec.Slice(), 1024)
	assert.Equal(t, float32(5), vec.Slice()[0])
}

func TestOllamaEmbedBatchKeepsOrderAcrossChunks(t *testing.T) {
	var calls atomic.Int32
	srv := newOllamaServer(t, 8, &calls)
	p := NewOllamaProvider(srv.URL, "m", 8)

	texts := make([]string, ollamaChunkSize*2+3)
	for i := range texts {
		texts[i] = string(make([]byte, i+1))
	}
	vecs, err := p.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v.Slice()[0], "vector %d out of order", i)
	}
	assert.Equal(t, int32(3), calls.Load())

	empty, err := p.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestOllamaErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()
		_, err := NewOllamaProvider(srv.URL, "m", 8).Embed(context.Background(), "x")
		assert.ErrorContains(t, err, "status 500")
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		srv := newOllamaServer(t, 4, nil)
		_, err := NewOllamaProvider(srv.URL, "m", 8).Embed(context.Background(), "x")
		assert.ErrorContains(t, err, "want 8")
	})

	t.Run("invalid json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer srv.Close()
		_, err := NewOllamaProvider(srv.URL, "m", 8).Embed(context.Background(), "x")
		assert.Error(t, err)
	})
}

func TestOpenAIEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openAIRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 4, req.Dimensions)

		// Reply out of order to prove results are placed by index.
		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[2,0,0,0]},
			{"index":0,"embedding":[1,0,0,0]}
		]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL, "text-embedding-3-small", 4)
	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, float32(1), vecs[0].Slice()[0])
	assert.Equal(t, float32(2), vecs[1].Slice()[0])
}

func TestOpenAIEmbedAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIProvider("bad", srv.URL, "m", 4).Embed(context.Background(), "a")
	assert.ErrorContains(t, err, "bad key")
}

func TestNoopProvider(t *testing.T) {
	p := NewNoopProvider(1024)
	assert.Equal(t, 1024, p.Dimensions())
	_, err := p.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoProvider)
	assert.False(t, Available(p))
	assert.False(t, Available(nil))
	assert.True(t, Available(NewOllamaProvider("", "m", 4)))
}
