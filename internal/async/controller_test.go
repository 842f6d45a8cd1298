package async

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
	"github.com/joseph-ayodele/review-orchestrator/internal/workflow"
)

type fakeExecutor struct {
	hold    time.Duration
	respond func(req entity.ReviewRequest, call int) error

	mu       sync.Mutex
	started  []uuid.UUID
	calls    map[uuid.UUID]int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeExecutor) Execute(ctx context.Context, req entity.ReviewRequest) (workflow.Summary, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[uuid.UUID]int{}
	}
	f.started = append(f.started, req.JobID)
	f.calls[req.JobID]++
	call := f.calls[req.JobID]
	f.mu.Unlock()

	if f.hold > 0 {
		select {
		case <-time.After(f.hold):
		case <-ctx.Done():
			return workflow.Summary{}, ctx.Err()
		}
	}
	var err error
	if f.respond != nil {
		err = f.respond(req, call)
	}
	if err == nil {
		return workflow.Summary{JobID: req.JobID, Status: constants.JobStatusCompleted}, nil
	}
	return workflow.Summary{JobID: req.JobID}, err
}

func (f *fakeExecutor) startOrder() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.started...)
}

func (f *fakeExecutor) callsFor(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type failedJobs struct {
	mu      sync.Mutex
	details map[uuid.UUID]string
}

func (f *failedJobs) FailJob(_ context.Context, id uuid.UUID, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.details == nil {
		f.details = map[uuid.UUID]string{}
	}
	f.details[id] = detail
	return nil
}

func (f *failedJobs) get(id uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.details[id]
}

// startController runs c until the test ends.
func startController(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func drained(tr *MemoryTransport) func() bool {
	return func() bool {
		ready, inflight := tr.Depth()
		return ready == 0 && inflight == 0
	}
}

func TestControllerBoundsConcurrency(t *testing.T) {
	const k = 3
	tr := NewMemoryTransport(time.Minute)
	exec := &fakeExecutor{hold: 20 * time.Millisecond}
	c := NewController(tr, exec, &failedJobs{}, ControllerConfig{Concurrency: k}, nil)

	for i := 0; i < k+5; i++ {
		_, err := c.Submit(context.Background(), entity.ReviewRequest{JobID: uuid.New()})
		require.NoError(t, err)
	}
	startController(t, c)

	require.Eventually(t, drained(tr), 2*time.Second, 5*time.Millisecond)
	assert.Len(t, exec.startOrder(), k+5)
	assert.LessOrEqual(t, exec.maxSeen.Load(), int32(k))
	assert.Equal(t, int32(k), exec.maxSeen.Load())
}

func TestControllerStartsJobsInSubmissionOrder(t *testing.T) {
	tr := NewMemoryTransport(time.Minute)
	exec := &fakeExecutor{}
	c := NewController(tr, exec, &failedJobs{}, ControllerConfig{Concurrency: 1}, nil)

	var want []uuid.UUID
	for i := 0; i < 6; i++ {
		id := uuid.New()
		want = append(want, id)
		_, err := c.Submit(context.Background(), entity.ReviewRequest{JobID: id})
		require.NoError(t, err)
	}
	startController(t, c)

	require.Eventually(t, drained(tr), 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, exec.startOrder())
}

func TestControllerSubmitDeduplicates(t *testing.T) {
	tr := NewMemoryTransport(time.Minute)
	c := NewController(tr, &fakeExecutor{}, &failedJobs{}, ControllerConfig{}, nil)
	req := entity.ReviewRequest{JobID: uuid.New(), CheckName: "Signature"}

	first, err := c.Submit(context.Background(), req)
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), req)
	require.ErrorIs(t, err, ErrDuplicate)

	req.CheckName = "Date"
	second, err := c.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.DedupKey, second.DedupKey)

	_, err = c.Submit(context.Background(), entity.ReviewRequest{})
	require.Error(t, err)
}

func TestControllerAcksSettledJobs(t *testing.T) {
	tr := NewMemoryTransport(0)
	exec := &fakeExecutor{respond: func(entity.ReviewRequest, int) error {
		return workflow.ErrJobFailed
	}}
	c := NewController(tr, exec, &failedJobs{}, ControllerConfig{RetryVisibility: time.Millisecond}, nil)
	req := entity.ReviewRequest{JobID: uuid.New()}
	_, err := c.Submit(context.Background(), req)
	require.NoError(t, err)
	startController(t, c)

	require.Eventually(t, drained(tr), 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, exec.callsFor(req.JobID))
}

func TestControllerRedeliversThenDeadLetters(t *testing.T) {
	tr := NewMemoryTransport(0)
	exec := &fakeExecutor{respond: func(entity.ReviewRequest, int) error {
		return errors.New("database unavailable")
	}}
	jobs := &failedJobs{}
	c := NewController(tr, exec, jobs, ControllerConfig{MaxReceives: 3, RetryVisibility: 5 * time.Millisecond}, nil)
	req := entity.ReviewRequest{JobID: uuid.New()}
	_, err := c.Submit(context.Background(), req)
	require.NoError(t, err)
	startController(t, c)

	require.Eventually(t, func() bool {
		dead, _ := c.DeadLetters(context.Background())
		return len(dead) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 3, exec.callsFor(req.JobID))
	assert.True(t, strings.HasPrefix(jobs.get(req.JobID), constants.ErrCodeDeadLetter))
	dead, err := c.DeadLetters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, req.JobID, dead[0].JobID)
}

func TestControllerRecoversAfterTransientFailure(t *testing.T) {
	tr := NewMemoryTransport(0)
	exec := &fakeExecutor{respond: func(_ entity.ReviewRequest, call int) error {
		if call == 1 {
			return context.DeadlineExceeded
		}
		return nil
	}}
	c := NewController(tr, exec, &failedJobs{}, ControllerConfig{RetryVisibility: 5 * time.Millisecond}, nil)
	req := entity.ReviewRequest{JobID: uuid.New()}
	_, err := c.Submit(context.Background(), req)
	require.NoError(t, err)
	startController(t, c)

	require.Eventually(t, drained(tr), 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, exec.callsFor(req.JobID))
	dead, _ := c.DeadLetters(context.Background())
	assert.Empty(t, dead)
}

func TestControllerFailsJobsThatWaitedTooLong(t *testing.T) {
	tr := NewMemoryTransport(0)
	exec := &fakeExecutor{}
	jobs := &failedJobs{}
	c := NewController(tr, exec, jobs, ControllerConfig{MaxWait: time.Hour}, nil)

	id := uuid.New()
	body, err := json.Marshal(entity.ReviewRequest{JobID: id})
	require.NoError(t, err)
	require.NoError(t, tr.Send(context.Background(), QueueMessage{
		JobID:       id,
		Body:        body,
		SubmittedAt: time.Now().Add(-2 * time.Hour),
	}))
	startController(t, c)

	require.Eventually(t, drained(tr), 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, exec.callsFor(id))
	assert.True(t, strings.HasPrefix(jobs.get(id), constants.ErrCodeQueueTimeout))
}

func TestControllerConsumesInvalidMessages(t *testing.T) {
	tr := NewMemoryTransport(0)
	exec := &fakeExecutor{}
	c := NewController(tr, exec, &failedJobs{}, ControllerConfig{}, nil)

	require.NoError(t, tr.Send(context.Background(), QueueMessage{Body: json.RawMessage(`{not json`)}))
	require.NoError(t, tr.Send(context.Background(), QueueMessage{Body: json.RawMessage(`{"checkName":"no job"}`)}))
	startController(t, c)

	require.Eventually(t, drained(tr), 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, exec.startOrder())
}

func TestControllerShutdownLeavesJobForRedelivery(t *testing.T) {
	tr := NewMemoryTransport(0)
	exec := &fakeExecutor{hold: time.Minute}
	c := NewController(tr, exec, &failedJobs{}, ControllerConfig{Visibility: time.Minute, RetryVisibility: time.Minute}, nil)
	_, err := c.Submit(context.Background(), entity.ReviewRequest{JobID: uuid.New()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return exec.inFlight.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, inflight := tr.Depth()
	assert.Equal(t, 1, inflight)
}
