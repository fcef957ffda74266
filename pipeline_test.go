package chronograph

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronograph-io/chronograph/pkg/config"
	"github.com/chronograph-io/chronograph/pkg/driver"
	"github.com/chronograph-io/chronograph/pkg/types"
)

// fakeLLM routes structured calls by prompt kind, replaying scripted
// JSON replies.
type fakeLLM struct {
	extractions    []string
	reflexions     []string
	contradiction  string
	duplicate      string
	extractErr     error
	extractCalls   int
	reflexionCalls int
	judgeCalls     int
}

func (f *fakeLLM) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return nil, errors.New("not used")
}

func (f *fakeLLM) ChatStructured(ctx context.Context, messages []types.Message, out any) error {
	system := messages[0].Content
	switch {
	case strings.Contains(system, "extract entities and relationships"):
		f.extractCalls++
		if f.extractErr != nil {
			return f.extractErr
		}
		reply := f.extractions[0]
		if len(f.extractions) > 1 {
			f.extractions = f.extractions[1:]
		}
		return json.Unmarshal([]byte(reply), out)
	case strings.Contains(system, "review an entity-extraction"):
		f.reflexionCalls++
		reply := `{"missed_entities": []}`
		if len(f.reflexions) > 0 {
			reply = f.reflexions[0]
			f.reflexions = f.reflexions[1:]
		}
		return json.Unmarshal([]byte(reply), out)
	case strings.Contains(system, "same real-world entity"):
		f.judgeCalls++
		reply := f.duplicate
		if reply == "" {
			reply = `{"match_uuid": ""}`
		}
		return json.Unmarshal([]byte(reply), out)
	case strings.Contains(system, "contradicts the existing one"):
		reply := f.contradiction
		if reply == "" {
			reply = `{"contradicts": false}`
		}
		return json.Unmarshal([]byte(reply), out)
	case strings.Contains(system, "merge two descriptions"):
		return json.Unmarshal([]byte(`{"summary": "merged"}`), out)
	}
	return errors.New("unexpected prompt")
}

func (f *fakeLLM) Close() error { return nil }

type hashEmbedder struct{}

func (hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 4)
	for i, r := range text {
		vec[i%4] += float32(r%13) / 13
	}
	return vec, nil
}

func (h hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i], _ = h.Embed(ctx, text)
	}
	return out, nil
}

func (hashEmbedder) Dimensions() int { return 4 }
func (hashEmbedder) Close() error    { return nil }

func testClient(t *testing.T, model *fakeLLM) *Client {
	t.Helper()
	store, err := driver.NewBadgerDriver("", nil)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Pipeline.MaxEpisodeBytes = 1 << 20
	cfg.Pipeline.ContextWindow = 5
	cfg.Pipeline.MaxExtractionAttempts = 3
	cfg.Pipeline.CapabilityConcurrency = 4
	cfg.Pipeline.RelationOverlapThreshold = 0.85
	cfg.Dedup.PrefilterThreshold = 0.5
	cfg.Dedup.ShortlistSize = 10
	cfg.Search.RankConstant = 60
	cfg.Search.MMRLambda = 0.5
	cfg.Search.MaxHops = 3
	cfg.Search.RetrievalDepth = 20
	cfg.Search.RerankDepth = 100
	cfg.Community.MinSize = 2
	cfg.Community.MaxIterations = 100

	client, err := New(cfg, &Options{
		Store:    store,
		LLM:      model,
		Embedder: hashEmbedder{},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

const simpleExtraction = `{
	"entities": [
		{"name": "Alice Chen", "label": "Person", "summary": "An engineer"},
		{"name": "Acme", "label": "Organization", "summary": "A company"}
	],
	"relationships": [
		{"source_entity": "Alice Chen", "target_entity": "Acme",
		 "name": "WORKS_AT", "fact": "Alice Chen works at Acme", "valid_at": null}
	]
}`

func episodeAt(groupID, content string, ref time.Time) *types.Episode {
	return &types.Episode{
		Name:      "test episode",
		Content:   content,
		GroupID:   groupID,
		Kind:      types.TextEpisode,
		Reference: ref,
	}
}

func TestAddEpisodePersistsGraph(t *testing.T) {
	model := &fakeLLM{extractions: []string{simpleExtraction}}
	client := testClient(t, model)
	ctx := context.Background()

	ref := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	results, err := client.AddEpisode(ctx, episodeAt("acme", "Alice Chen works at Acme.", ref))
	require.NoError(t, err)

	assert.Equal(t, 2, results.CreatedNodeCount)
	assert.Zero(t, results.MergedNodeCount)
	require.Len(t, results.Edges, 1)
	assert.Equal(t, ref, results.Edges[0].ValidAt, "edge valid time defaults to the episode reference")
	assert.True(t, results.Edges[0].IsOpen())
	assert.NotEmpty(t, results.Edges[0].FactEmbedding)

	entities, err := client.store.GetNodesByGroup(ctx, "acme", types.EntityNodeType)
	require.NoError(t, err)
	assert.Len(t, entities, 2)
	for _, node := range entities {
		assert.Equal(t, []string{results.Episode.UUID}, node.EpisodeIDs)
		assert.NotEmpty(t, node.NameEmbedding)
	}

	episodes, err := client.GetEpisodes(ctx, "acme", time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, "Alice Chen works at Acme.", episodes[0].Content)
}

func TestAddEpisodeDeduplicatesAcrossEpisodes(t *testing.T) {
	model := &fakeLLM{extractions: []string{simpleExtraction, simpleExtraction}}
	client := testClient(t, model)
	ctx := context.Background()

	ref := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := client.AddEpisode(ctx, episodeAt("acme", "first", ref))
	require.NoError(t, err)

	results, err := client.AddEpisode(ctx, episodeAt("acme", "second", ref.AddDate(0, 0, 1)))
	require.NoError(t, err)

	assert.Zero(t, results.CreatedNodeCount, "same names resolve to existing entities")
	assert.Equal(t, 2, results.MergedNodeCount)
	assert.Zero(t, model.judgeCalls, "exact name matches bypass the judgment call")

	entities, err := client.store.GetNodesByGroup(ctx, "acme", types.EntityNodeType)
	require.NoError(t, err)
	assert.Len(t, entities, 2, "no duplicate entities created")
	for _, node := range entities {
		assert.Len(t, node.EpisodeIDs, 2, "both episodes in provenance")
	}
}

func TestAddEpisodeInvalidatesSupersededFact(t *testing.T) {
	succession := `{
		"entities": [
			{"name": "Alice Chen", "label": "Person", "summary": ""},
			{"name": "Acme", "label": "Organization", "summary": ""}
		],
		"relationships": [
			{"source_entity": "Alice Chen", "target_entity": "Acme",
			 "name": "WORKS_AT", "fact": "Alice Chen is CTO at Acme", "valid_at": null}
		]
	}`
	model := &fakeLLM{
		extractions:   []string{simpleExtraction, succession},
		contradiction: `{"contradicts": true}`,
	}
	client := testClient(t, model)
	ctx := context.Background()

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	first, err := client.AddEpisode(ctx, episodeAt("acme", "Alice works at Acme.", t1))
	require.NoError(t, err)
	require.Len(t, first.Edges, 1)
	oldEdge := first.Edges[0]

	second, err := client.AddEpisode(ctx, episodeAt("acme", "Alice is now CTO at Acme.", t2))
	require.NoError(t, err)
	require.Len(t, second.Edges, 1)
	require.Len(t, second.InvalidatedEdges, 1)

	closed := second.InvalidatedEdges[0]
	assert.Equal(t, oldEdge.UUID, closed.UUID)
	require.NotNil(t, closed.InvalidAt)
	assert.Equal(t, t2, *closed.InvalidAt, "old fact closed at the new fact's valid time")
	assert.Contains(t, closed.InvalidatedBy, second.Edges[0].UUID)

	// Point-in-time views straddle the succession.
	nodes, during, err := client.Snapshot(ctx, "acme", t1.AddDate(0, 2, 0))
	require.NoError(t, err)
	require.Len(t, during, 1)
	assert.Equal(t, oldEdge.UUID, during[0].UUID)
	require.Len(t, nodes, 2, "snapshot includes the valid edges' endpoints")
	names := []string{nodes[0].Name, nodes[1].Name}
	assert.ElementsMatch(t, []string{"Alice Chen", "Acme"}, names)

	_, after, err := client.Snapshot(ctx, "acme", t2)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, second.Edges[0].UUID, after[0].UUID)
}

func TestAddEpisodeExactRestatementMergesProvenance(t *testing.T) {
	model := &fakeLLM{extractions: []string{simpleExtraction, simpleExtraction}}
	client := testClient(t, model)
	ctx := context.Background()

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first, err := client.AddEpisode(ctx, episodeAt("acme", "Alice works at Acme.", t1))
	require.NoError(t, err)

	second, err := client.AddEpisode(ctx, episodeAt("acme", "As mentioned, Alice works at Acme.", t1.AddDate(0, 0, 1)))
	require.NoError(t, err)

	assert.Empty(t, second.Edges, "restated fact creates no new edge")
	assert.Empty(t, second.InvalidatedEdges)

	edges, err := client.store.GetEdgesByGroup(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, first.Edges[0].UUID, edges[0].UUID)
	assert.Len(t, edges[0].EpisodeIDs, 2, "restating episode joins provenance")
}

func TestAddEpisodeReflexionRecoversMissedEntity(t *testing.T) {
	incomplete := `{
		"entities": [{"name": "Alice Chen", "label": "Person", "summary": ""}],
		"relationships": []
	}`
	model := &fakeLLM{
		extractions: []string{incomplete, simpleExtraction},
		reflexions:  []string{`{"missed_entities": ["Acme"]}`, `{"missed_entities": []}`},
	}
	client := testClient(t, model)

	results, err := client.AddEpisode(context.Background(),
		episodeAt("acme", "Alice Chen works at Acme.", time.Now().UTC()))
	require.NoError(t, err)

	assert.Equal(t, 2, model.extractCalls, "missed entity triggers a second pass")
	assert.Equal(t, 2, results.CreatedNodeCount, "second pass recovers the missed entity")
}

func TestAddEpisodeParaphraseMergesIntoOpenEdge(t *testing.T) {
	paraphrase := strings.Replace(simpleExtraction, "works at", "is employed by", 1)
	model := &fakeLLM{extractions: []string{simpleExtraction, paraphrase}}
	client := testClient(t, model)
	ctx := context.Background()

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first, err := client.AddEpisode(ctx, episodeAt("acme", "first", t1))
	require.NoError(t, err)

	// The judgment calls the reworded fact corroborating, not
	// contradicting: it restates the open WORKS_AT edge rather than
	// opening a second one for the same triple.
	second, err := client.AddEpisode(ctx, episodeAt("acme", "second", t1.AddDate(0, 1, 0)))
	require.NoError(t, err)
	assert.Empty(t, second.Edges, "paraphrase creates no new edge")
	assert.Empty(t, second.InvalidatedEdges)

	edges, err := client.store.GetEdgesByGroup(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, edges, 1, "one open edge per (source, target, name) triple")
	assert.Equal(t, first.Edges[0].UUID, edges[0].UUID)
	assert.True(t, edges[0].IsOpen())
	assert.Len(t, edges[0].EpisodeIDs, 2, "corroborating episode joins provenance")
}

func TestAddEpisodeDefaultsUnnamedEpisode(t *testing.T) {
	model := &fakeLLM{extractions: []string{simpleExtraction}}
	client := testClient(t, model)
	ctx := context.Background()

	unnamed := episodeAt("acme", "Alice Chen works at Acme.", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	unnamed.Name = ""

	results, err := client.AddEpisode(ctx, unnamed)
	require.NoError(t, err, "a nameless episode is valid input, not a store failure")
	assert.Equal(t, "acme-episode-20240301T000000Z", results.Episode.Name)

	episodes, err := client.GetEpisodes(ctx, "acme", time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, results.Episode.Name, episodes[0].Name)
}

func TestAddEpisodeRejectsBadInput(t *testing.T) {
	client := testClient(t, &fakeLLM{extractions: []string{simpleExtraction}})
	ctx := context.Background()

	_, err := client.AddEpisode(ctx, episodeAt("bad group!", "content", time.Now()))
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindInvalidNamespace, perr.Kind)

	_, err = client.AddEpisode(ctx, episodeAt("ok", "", time.Now()))
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindInvalidEpisode, perr.Kind)
}

func TestAddEpisodeExtractionFailureLeavesStoreUntouched(t *testing.T) {
	model := &fakeLLM{extractErr: errors.New("model offline")}
	client := testClient(t, model)
	ctx := context.Background()

	_, err := client.AddEpisode(ctx, episodeAt("acme", "content", time.Now()))
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageExtracting, perr.Stage)
	assert.Equal(t, KindCapabilityUnavailable, perr.Kind)

	episodes, err := client.GetEpisodes(ctx, "acme", time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, episodes, "failed episode persisted nothing")
}

func TestAddEpisodeBulkReportsPerEpisodeFailures(t *testing.T) {
	model := &fakeLLM{extractions: []string{simpleExtraction}}
	client := testClient(t, model)

	good := episodeAt("acme", "fine", time.Now().UTC())
	bad := episodeAt("not a valid group", "fine", time.Now().UTC())
	bad.Name = "bad-episode"

	bulk, err := client.AddEpisodeBulk(context.Background(), []*types.Episode{good, bad})
	require.NoError(t, err)
	assert.Len(t, bulk.Results, 1)
	require.Len(t, bulk.Failed, 1)
	assert.Contains(t, bulk.Failed["bad-episode"], "invalid_namespace")
}

func TestSearchFindsIngestedFacts(t *testing.T) {
	model := &fakeLLM{extractions: []string{simpleExtraction}}
	client := testClient(t, model)
	ctx := context.Background()

	_, err := client.AddEpisode(ctx, episodeAt("acme", "Alice Chen works at Acme.", time.Now().UTC()))
	require.NoError(t, err)

	results, err := client.Search(ctx, "Alice Chen", &types.SearchConfig{GroupIDs: []string{"acme"}})
	require.NoError(t, err)
	require.NotEmpty(t, results.Nodes)
	assert.Equal(t, "Alice Chen", results.Nodes[0].Name)
}

func TestRemoveEpisodeRetractsContribution(t *testing.T) {
	model := &fakeLLM{extractions: []string{simpleExtraction}}
	client := testClient(t, model)
	ctx := context.Background()

	results, err := client.AddEpisode(ctx, episodeAt("acme", "content", time.Now().UTC()))
	require.NoError(t, err)

	require.NoError(t, client.RemoveEpisode(ctx, "acme", results.Episode.UUID))

	entities, err := client.store.GetNodesByGroup(ctx, "acme", types.EntityNodeType)
	require.NoError(t, err)
	assert.Empty(t, entities, "entities supported only by the removed episode deleted")
}

func TestClosedClientRejectsCalls(t *testing.T) {
	client := testClient(t, &fakeLLM{extractions: []string{simpleExtraction}})
	require.NoError(t, client.Close())

	_, err := client.AddEpisode(context.Background(), episodeAt("acme", "content", time.Now()))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = client.Search(context.Background(), "q", &types.SearchConfig{GroupIDs: []string{"acme"}})
	assert.ErrorIs(t, err, ErrClosed)
}
