package async

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memEntry struct {
	seq       uint64
	msg       QueueMessage
	receives  int
	visibleAt time.Time
}

// MemoryTransport is an in-process Transport. It keeps strict FIFO order
// across redeliveries by re-inserting expired messages at their original
// position.
type MemoryTransport struct {
	dedupWindow time.Duration
	now         func() time.Time

	mu       sync.Mutex
	seq      uint64
	ready    []*memEntry
	inflight map[string]*memEntry
	dedup    map[string]time.Time
	dead     []QueueMessage
	closed   bool
	wake     chan struct{}
}

func NewMemoryTransport(dedupWindow time.Duration) *MemoryTransport {
	return &MemoryTransport{
		dedupWindow: dedupWindow,
		now:         time.Now,
		inflight:    make(map[string]*memEntry),
		dedup:       make(map[string]time.Time),
		wake:        make(chan struct{}, 1),
	}
}

func (t *MemoryTransport) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *MemoryTransport) Send(_ context.Context, msg QueueMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	now := t.now()
	for k, exp := range t.dedup {
		if !now.Before(exp) {
			delete(t.dedup, k)
		}
	}
	if msg.DedupKey != "" && t.dedupWindow > 0 {
		if _, seen := t.dedup[msg.DedupKey]; seen {
			return ErrDuplicate
		}
		t.dedup[msg.DedupKey] = now.Add(t.dedupWindow)
	}
	if msg.SubmittedAt.IsZero() {
		msg.SubmittedAt = now
	}
	t.seq++
	t.ready = append(t.ready, &memEntry{seq: t.seq, msg: msg})
	t.signal()
	return nil
}

// reclaim moves lapsed in-flight entries back to ready and returns the next
// time one will lapse.
func (t *MemoryTransport) reclaim(now time.Time) time.Time {
	var next time.Time
	for r, e := range t.inflight {
		if !now.Before(e.visibleAt) {
			delete(t.inflight, r)
			t.insertReady(e)
			continue
		}
		if next.IsZero() || e.visibleAt.Before(next) {
			next = e.visibleAt
		}
	}
	return next
}

func (t *MemoryTransport) insertReady(e *memEntry) {
	i := sort.Search(len(t.ready), func(i int) bool { return t.ready[i].seq > e.seq })
	t.ready = append(t.ready, nil)
	copy(t.ready[i+1:], t.ready[i:])
	t.ready[i] = e
}

func (t *MemoryTransport) Receive(ctx context.Context, visibility time.Duration) (Delivery, error) {
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return Delivery{}, ErrClosed
		}
		now := t.now()
		next := t.reclaim(now)
		if len(t.ready) > 0 {
			e := t.ready[0]
			t.ready = t.ready[1:]
			e.receives++
			e.visibleAt = now.Add(visibility)
			receipt := uuid.NewString()
			t.inflight[receipt] = e
			t.mu.Unlock()
			return Delivery{Receipt: receipt, Message: e.msg, ReceiveCount: e.receives}, nil
		}
		t.mu.Unlock()

		wait := time.Second
		if !next.IsZero() && next.Sub(now) < wait {
			wait = next.Sub(now)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Delivery{}, ctx.Err()
		case <-t.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (t *MemoryTransport) take(receipt string) (*memEntry, error) {
	e, ok := t.inflight[receipt]
	if !ok {
		return nil, ErrUnknownReceipt
	}
	delete(t.inflight, receipt)
	return e, nil
}

func (t *MemoryTransport) Ack(_ context.Context, receipt string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.take(receipt)
	return err
}

func (t *MemoryTransport) ChangeVisibility(_ context.Context, receipt string, d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.inflight[receipt]
	if !ok {
		return ErrUnknownReceipt
	}
	e.visibleAt = t.now().Add(d)
	t.signal()
	return nil
}

func (t *MemoryTransport) DeadLetter(_ context.Context, receipt string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.take(receipt)
	if err != nil {
		return err
	}
	t.dead = append(t.dead, e.msg)
	return nil
}

func (t *MemoryTransport) DeadLetters(context.Context) ([]QueueMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]QueueMessage(nil), t.dead...), nil
}

// Depth reports visible and in-flight message counts.
func (t *MemoryTransport) Depth() (ready, inflight int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ready), len(t.inflight)
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.signal()
	return nil
}
