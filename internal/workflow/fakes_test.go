package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/internal/agent"
	"github.com/joseph-ayodele/review-orchestrator/internal/common"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
	"github.com/joseph-ayodele/review-orchestrator/internal/storage"
)

type memStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*entity.ReviewJob
	lists     map[uuid.UUID]*entity.CheckList
	items     map[uuid.UUID][]entity.CheckItem
	results   map[uuid.UUID][]*entity.ReviewResult
	applied   int
	applyErr  error
	completed *entity.JobCompletion
}

func newMemStore() *memStore {
	return &memStore{
		jobs:    map[uuid.UUID]*entity.ReviewJob{},
		lists:   map[uuid.UUID]*entity.CheckList{},
		items:   map[uuid.UUID][]entity.CheckItem{},
		results: map[uuid.UUID][]*entity.ReviewResult{},
	}
}

// seed creates a checklist with the given items and a pending job over it.
func (s *memStore) seed(items ...entity.CheckItem) *entity.ReviewJob {
	listID := uuid.New()
	for i := range items {
		items[i].CheckListID = listID
	}
	job := &entity.ReviewJob{
		ID:          uuid.New(),
		CheckListID: listID,
		Name:        "contract review",
		Status:      constants.JobStatusPending,
		Documents:   []entity.Document{{ID: uuid.New(), Filename: "contract.pdf", Path: "docs/contract.pdf"}},
	}
	s.lists[listID] = &entity.CheckList{ID: listID, Name: "Contract"}
	s.items[listID] = items
	s.jobs[job.ID] = job
	return job
}

func (s *memStore) job(id uuid.UUID) entity.ReviewJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *memStore) GetReviewJob(_ context.Context, id uuid.UUID) (*entity.ReviewJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) MarkJobProcessing(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j := s.jobs[id]; !j.Status.IsTerminal() {
		j.Status = constants.JobStatusProcessing
	}
	return nil
}

func (s *memStore) FailJob(_ context.Context, id uuid.UUID, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	if j.Status.IsTerminal() {
		return nil
	}
	j.Status = constants.JobStatusFailed
	j.ErrorDetail = &detail
	return nil
}

func (s *memStore) CompleteJob(_ context.Context, id uuid.UUID, c entity.JobCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	if j.Status.IsTerminal() {
		return nil
	}
	j.Status = constants.JobStatusCompleted
	j.InputTokens, j.OutputTokens, j.TotalCost = c.Usage.InputTokens, c.Usage.OutputTokens, c.Usage.TotalCost
	st := c.NextActionStatus
	j.NextActionStatus = &st
	j.NextAction = c.NextAction
	s.completed = &c
	return nil
}

func (s *memStore) GetCheckList(_ context.Context, id uuid.UUID) (*entity.CheckList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.lists[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cl, nil
}

func (s *memStore) ListCheckItems(_ context.Context, id uuid.UUID) ([]entity.CheckItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.CheckItem(nil), s.items[id]...), nil
}

func (s *memStore) EnsurePendingResults(_ context.Context, jobID uuid.UUID, items []entity.CheckItem) ([]entity.ReviewResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	have := map[string]*entity.ReviewResult{}
	for _, r := range s.results[jobID] {
		have[r.CheckItemID] = r
	}
	out := make([]entity.ReviewResult, 0, len(items))
	for _, it := range items {
		r, ok := have[it.ID]
		if !ok {
			r = &entity.ReviewResult{
				ID:            uuid.New(),
				ReviewJobID:   jobID,
				CheckItemID:   it.ID,
				CheckItemName: it.Name,
				Status:        constants.ResultStatusPending,
			}
			s.results[jobID] = append(s.results[jobID], r)
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *memStore) ApplyResultOutcome(_ context.Context, id uuid.UUID, o entity.ResultOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	for _, rs := range s.results {
		for _, r := range rs {
			if r.ID != id {
				continue
			}
			r.Status, r.Verdict, r.Confidence = o.Status, o.Verdict, o.Confidence
			r.Explanation, r.ShortExplanation, r.ExtractedText = o.Explanation, o.ShortExplanation, o.ExtractedText
			r.Usage, r.ErrorDetail = o.Usage, o.ErrorDetail
			s.applied++
			return nil
		}
	}
	return common.ErrNotFound
}

func (s *memStore) ListReviewResults(_ context.Context, jobID uuid.UUID) ([]entity.ReviewResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.ReviewResult, 0, len(s.results[jobID]))
	for _, r := range s.results[jobID] {
		out = append(out, *r)
	}
	return out, nil
}

func (s *memStore) result(jobID uuid.UUID, itemID string) entity.ReviewResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.results[jobID] {
		if r.CheckItemID == itemID {
			return *r
		}
	}
	return entity.ReviewResult{}
}

type docSet map[string]bool

func (d docSet) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	if !d[key] {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: 1, LastModified: time.Now()}, nil
}

// scriptedGateway answers each call with respond and tracks concurrency.
type scriptedGateway struct {
	respond func(req agent.Request, call int) agent.Invocation

	mu       sync.Mutex
	calls    map[string]int
	requests []agent.Request
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	hold     time.Duration
}

func (g *scriptedGateway) Invoke(ctx context.Context, req agent.Request) agent.Invocation {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		m := g.maxSeen.Load()
		if n <= m || g.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if g.hold > 0 {
		select {
		case <-time.After(g.hold):
		case <-ctx.Done():
			return agent.Invocation{Request: req, Outcome: agent.OutcomeRetryable, Err: ctx.Err()}
		}
	}

	g.mu.Lock()
	if g.calls == nil {
		g.calls = map[string]int{}
	}
	key := string(req.Target) + "/" + req.ItemID
	g.calls[key]++
	call := g.calls[key]
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	inv := g.respond(req, call)
	inv.Request = req
	return inv
}

func (g *scriptedGateway) callCount(target agent.Target, itemID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[string(target)+"/"+itemID]
}

func success(body string) agent.Invocation {
	return agent.Invocation{StatusCode: 200, Body: []byte(body), Outcome: agent.OutcomeSuccess}
}

func passBody(tokens int64) string {
	b, _ := json.Marshal(map[string]any{
		"result":           "pass",
		"confidence":       0.9,
		"explanation":      "present",
		"shortExplanation": "ok",
		"inputTokens":      tokens,
		"outputTokens":     tokens,
		"totalCost":        0.01,
	})
	return string(b)
}

func leaf(id, name string) entity.CheckItem {
	return entity.CheckItem{ID: id, Name: name, Description: name + " must be present"}
}
