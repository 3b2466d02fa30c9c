package ratelimit

import (
	"sync/atomic"

	"github.com/espegro/fact-agent/internal/logger"
)

// BufferedSender handles non-blocking sends to a bounded channel with
// a drop policy. "newest" drops the incoming event when the queue is
// full (tail-drop); "oldest" evicts the head to make room.
type BufferedSender[T any] struct {
	channel      chan T
	dropPolicy   string
	logDrops     bool
	droppedCount uint64
}

// NewBufferedSender creates a new buffered sender
func NewBufferedSender[T any](channel chan T, dropPolicy string, logDrops bool) *BufferedSender[T] {
	return &BufferedSender[T]{
		channel:    channel,
		dropPolicy: dropPolicy,
		logDrops:   logDrops,
	}
}

// Send attempts to send data to the channel
// Returns true if sent, false if dropped
func (b *BufferedSender[T]) Send(data T) bool {
	select {
	case b.channel <- data:
		// Successfully sent
		return true
	default:
		// Channel is full - drop based on policy
		return b.handleFullChannel(data)
	}
}

// handleFullChannel handles a full channel based on drop policy
func (b *BufferedSender[T]) handleFullChannel(newData T) bool {
	dropped := atomic.AddUint64(&b.droppedCount, 1)

	if b.logDrops {
		// Log every 100th drop to avoid log spam
		if dropped%100 == 1 {
			logger.Warn("Event queue full, dropping events (total dropped: %d, policy: %s)",
				dropped, b.dropPolicy)
		}
	}

	switch b.dropPolicy {
	case "oldest":
		// Try to drop oldest event and add new one
		select {
		case <-b.channel:
			// Successfully removed oldest, now try to add new
			select {
			case b.channel <- newData:
				return true
			default:
				// Still full (race condition), drop new anyway
				return false
			}
		default:
			// Channel became empty (race condition), try to send again
			select {
			case b.channel <- newData:
				return true
			default:
				return false
			}
		}

	default:
		// "newest" and unknown policies: drop the incoming event
		return false
	}
}

// GetDroppedCount returns the number of dropped events
func (b *BufferedSender[T]) GetDroppedCount() uint64 {
	return atomic.LoadUint64(&b.droppedCount)
}

// ResetDroppedCount resets the dropped events counter
func (b *BufferedSender[T]) ResetDroppedCount() {
	atomic.StoreUint64(&b.droppedCount, 0)
}
