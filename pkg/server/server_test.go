package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chronograph "github.com/chronograph-io/chronograph"
	"github.com/chronograph-io/chronograph/pkg/config"
	"github.com/chronograph-io/chronograph/pkg/driver"
	"github.com/chronograph-io/chronograph/pkg/types"
)

// cannedLLM answers extraction with one fixed payload and everything
// else with an empty verdict.
type cannedLLM struct{}

func (cannedLLM) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return nil, errors.New("not used")
}

func (cannedLLM) ChatStructured(ctx context.Context, messages []types.Message, out any) error {
	system := messages[0].Content
	switch {
	case strings.Contains(system, "extract entities and relationships"):
		return json.Unmarshal([]byte(`{
			"entities": [
				{"name": "Alice Chen", "label": "Person", "summary": "An engineer"},
				{"name": "Acme", "label": "Organization", "summary": "A company"}
			],
			"relationships": [
				{"source_entity": "Alice Chen", "target_entity": "Acme",
				 "name": "WORKS_AT", "fact": "Alice Chen works at Acme", "valid_at": null}
			]
		}`), out)
	case strings.Contains(system, "review an entity-extraction"):
		return json.Unmarshal([]byte(`{"missed_entities": []}`), out)
	case strings.Contains(system, "same real-world entity"):
		return json.Unmarshal([]byte(`{"match_uuid": ""}`), out)
	case strings.Contains(system, "contradicts the existing one"):
		return json.Unmarshal([]byte(`{"contradicts": false}`), out)
	}
	return json.Unmarshal([]byte(`{}`), out)
}

func (cannedLLM) Close() error { return nil }

type flatEmbedder struct{}

func (flatEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (f flatEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (flatEmbedder) Dimensions() int { return 3 }
func (flatEmbedder) Close() error    { return nil }

func testServer(t *testing.T) *Server {
	t.Helper()
	store, err := driver.NewBadgerDriver("", nil)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Pipeline.MaxExtractionAttempts = 1
	cfg.Pipeline.CapabilityConcurrency = 4
	cfg.Pipeline.RelationOverlapThreshold = 0.85
	cfg.Dedup.PrefilterThreshold = 0.5
	cfg.Dedup.ShortlistSize = 10
	cfg.Search.RankConstant = 60
	cfg.Search.MaxHops = 3
	cfg.Search.RetrievalDepth = 20
	cfg.Search.RerankDepth = 100
	cfg.Community.MinSize = 2
	cfg.Community.MaxIterations = 100

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := chronograph.New(cfg, &chronograph.Options{
		Store:    store,
		LLM:      cannedLLM{},
		Embedder: flatEmbedder{},
		Logger:   logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return New(client, logger, "test")
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := testServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAddEpisodeEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/episodes",
		`{"group_id": "acme", "content": "Alice Chen works at Acme."}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var results types.AddEpisodeResults
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Equal(t, 2, results.CreatedNodeCount)
	assert.Len(t, results.Edges, 1)
}

func TestAddEpisodeEndpointRejectsBadNamespace(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/episodes",
		`{"group_id": "bad group!", "content": "text"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddEpisodeEndpointRequiresContent(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/episodes", `{"group_id": "acme"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/episodes",
		`{"group_id": "acme", "content": "Alice Chen works at Acme."}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/search?q=Alice+Chen&group_id=acme", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var results types.SearchResults
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.NotEmpty(t, results.Nodes)
}

func TestSearchEndpointValidation(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/search?group_id=acme", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/search?q=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/search?q=x&group_id=acme&limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshotEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/episodes",
		`{"group_id": "acme", "content": "Alice Chen works at Acme."}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/groups/acme/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "WORKS_AT")
	assert.Contains(t, rec.Body.String(), "Alice Chen", "snapshot carries the edge endpoints")

	rec = doJSON(t, s.Handler(), http.MethodGet, "/groups/acme/snapshot?at=not-a-time", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteGroupEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/episodes",
		`{"group_id": "acme", "content": "Alice Chen works at Acme."}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodDelete, "/groups/acme", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/groups/acme/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "WORKS_AT")
}
