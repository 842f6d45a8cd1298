package checklist

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/review-orchestrator/internal/common"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
	"github.com/joseph-ayodele/review-orchestrator/internal/llm"
)

type scriptedGenerator struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []llm.ChecklistRequest
}

func (g *scriptedGenerator) GenerateChecklist(_ context.Context, req llm.ChecklistRequest) (llm.Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return llm.Generation{}, g.err
	}
	text := g.replies[0]
	g.replies = g.replies[1:]
	return llm.Generation{Text: text, Usage: entity.Usage{InputTokens: 10, OutputTokens: 2}}, nil
}

type memArtifacts struct {
	objects map[string][]byte
}

func (m *memArtifacts) Put(_ context.Context, key string, body []byte, _ string) error {
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = body
	return nil
}

type memItems struct {
	rows []entity.CheckItem
}

func (m *memItems) InsertCheckItems(_ context.Context, _ uuid.UUID, items []entity.CheckItem) error {
	m.rows = append(m.rows, items...)
	return nil
}

func TestExtractRetriesOnceWithFeedback(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"not json",
		`[{"name":"Signature present","description":"The contract is signed","parent_id":null}]`,
	}}
	art := &memArtifacts{}
	rows := &memItems{}
	listID := uuid.New()

	res, err := NewExtractor(gen, art, rows).Extract(context.Background(), ExtractRequest{
		CheckListID: listID,
		Pages:       []Page{{Number: 1, Text: "page one"}},
	})
	require.NoError(t, err)

	require.Len(t, gen.requests, 2)
	assert.Empty(t, gen.requests[0].Feedback)
	assert.Contains(t, gen.requests[1].Feedback, "malformed model output")
	assert.Equal(t, "not json", gen.requests[1].PreviousOutput)

	require.Len(t, res.Items, 1)
	assert.Equal(t, "Signature present", res.Items[0].Name)
	assert.Equal(t, listID, res.Items[0].CheckListID)
	assert.EqualValues(t, 20, res.Usage.InputTokens)
	assert.Equal(t, rows.rows, res.Items)

	key := ArtifactKey(listID, 1)
	assert.Equal(t, []string{key}, res.Artifacts)
	var stored []Item
	require.NoError(t, json.Unmarshal(art.objects[key], &stored))
	require.Len(t, stored, 1)
	assert.Equal(t, res.Items[0].ID, stored[0].ID)
	assert.Nil(t, stored[0].ParentID)
}

func TestExtractFailsAfterSecondMalformedOutput(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"not json", "still not json"}}
	rows := &memItems{}

	_, err := NewExtractor(gen, nil, rows).Extract(context.Background(), ExtractRequest{
		CheckListID: uuid.New(),
		Pages:       []Page{{Number: 3, Text: "x"}},
	})
	require.Error(t, err)
	assert.Len(t, gen.requests, 2)
	assert.Empty(t, rows.rows)

	var xe *ExtractionError
	require.True(t, errors.As(err, &xe))
	assert.Equal(t, 3, xe.Page)

	var first, retry *MalformedOutputError
	require.True(t, errors.As(xe.FirstErr, &first))
	require.True(t, errors.As(xe.RetryErr, &retry))
	assert.Equal(t, "not json", first.Text)
	assert.Equal(t, "still not json", retry.Text)
	assert.True(t, errors.Is(err, ErrMalformedOutput))
}

func TestExtractGeneratorErrorIsNotRetried(t *testing.T) {
	boom := errors.New("connection reset")
	gen := &scriptedGenerator{err: boom}

	_, err := NewExtractor(gen, nil, nil).Extract(context.Background(), ExtractRequest{
		CheckListID: uuid.New(),
		Pages:       []Page{{Number: 1, Text: "x"}},
	})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, gen.requests, 1)
}

func TestExtractMultiplePagesKeepsIDsUnique(t *testing.T) {
	page := `[{"name":"Section"},{"name":"Check","description":"d","parent_id":0}]`
	gen := &scriptedGenerator{replies: []string{page, "```json\n" + page + "\n```"}}
	art := &memArtifacts{}
	listID := uuid.New()

	res, err := NewExtractor(gen, art, nil, WithIDFunc(sequentialIDs())).Extract(context.Background(), ExtractRequest{
		CheckListID: listID,
		Pages:       []Page{{Number: 1, Text: "a"}, {Number: 2, Text: "b"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 4)

	ids := map[string]bool{}
	for _, it := range res.Items {
		assert.False(t, ids[it.ID], "duplicate id %s", it.ID)
		ids[it.ID] = true
	}
	assert.Len(t, art.objects, 2)
	assert.Len(t, entity.EvaluableItems(res.Items), 2)
}

func TestExtractEmptyChecklist(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"[]"}}
	_, err := NewExtractor(gen, nil, nil).Extract(context.Background(), ExtractRequest{
		CheckListID: uuid.New(),
		Pages:       []Page{{Number: 1, Text: "blank"}},
	})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestExtractValidatesRequest(t *testing.T) {
	ex := NewExtractor(&scriptedGenerator{}, nil, nil)
	_, err := ex.Extract(context.Background(), ExtractRequest{Pages: []Page{{Number: 1}}})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = ex.Extract(context.Background(), ExtractRequest{CheckListID: uuid.New()})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
