package async

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDuplicate is returned by Send when a message with the same dedup key
	// was accepted within the dedup window.
	ErrDuplicate = errors.New("duplicate message")
	// ErrUnknownReceipt means the delivery is no longer in flight, usually
	// because its visibility expired and it was handed out again.
	ErrUnknownReceipt = errors.New("unknown receipt")
	ErrClosed         = errors.New("transport closed")
)

// QueueMessage is one review request waiting for execution.
type QueueMessage struct {
	JobID       uuid.UUID       `json:"jobId"`
	Body        json.RawMessage `json:"body"`
	DedupKey    string          `json:"dedupKey"`
	SubmittedAt time.Time       `json:"submittedAt"`
}

// Delivery is a received message. Receipt identifies this receive for Ack,
// ChangeVisibility and DeadLetter.
type Delivery struct {
	Receipt      string
	Message      QueueMessage
	ReceiveCount int
}

// Transport is a FIFO queue with visibility timeouts. A received message is
// hidden until it is acked or its visibility lapses.
type Transport interface {
	Send(ctx context.Context, msg QueueMessage) error
	// Receive blocks until a message is visible or ctx ends.
	Receive(ctx context.Context, visibility time.Duration) (Delivery, error)
	Ack(ctx context.Context, receipt string) error
	ChangeVisibility(ctx context.Context, receipt string, d time.Duration) error
	DeadLetter(ctx context.Context, receipt string) error
	DeadLetters(ctx context.Context) ([]QueueMessage, error)
	Close() error
}

// DedupKey is the content hash used for duplicate suppression.
func DedupKey(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
