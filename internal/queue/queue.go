// Package queue implements ChannelQueue (spec.md §4.7): one serial FIFO
// lane per channel, plus a shared semaphore bounding cross-channel
// concurrency, per spec.md §5. Grounded on the teacher pack's
// ebrakke-gopherclaw internal/gateway.Queue (per-session lanes over a
// shared golang.org/x/sync/semaphore.Weighted) — the teacher itself has no
// queue abstraction of its own.
package queue

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// maxDepth is the per-channel pending-work cap; new work is dropped past it.
const maxDepth = 5

// Work is one unit of channel work: the queue calls it with a per-run
// context derived from the queue's lifetime.
type Work func(ctx context.Context)

// ChannelQueue processes work for many channels concurrently, one lane per
// channel, with cross-channel concurrency capped by a shared semaphore.
type ChannelQueue struct {
	sem *semaphore.Weighted

	mu    sync.Mutex
	lanes map[string]chan Work

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// New creates a ChannelQueue allowing up to maxConcurrent runs across all
// channels simultaneously.
func New(parent context.Context, maxConcurrent int64, logger *slog.Logger) *ChannelQueue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	return &ChannelQueue{
		sem:    semaphore.NewWeighted(maxConcurrent),
		lanes:  make(map[string]chan Work),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Stop cancels the queue's context, closes every lane, and waits until each
// lane has run the work already enqueued on it; that work sees the
// canceled context.
func (q *ChannelQueue) Stop() {
	q.cancel()
	q.mu.Lock()
	for _, lane := range q.lanes {
		close(lane)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue appends work to channelID's lane, creating the lane on first use.
// If the lane already holds maxDepth items, work is dropped and a warning
// is logged, per spec.md §4.7.
func (q *ChannelQueue) Enqueue(channelID string, work Work) {
	q.mu.Lock()
	defer q.mu.Unlock()

	lane, ok := q.lanes[channelID]
	if !ok {
		lane = make(chan Work, maxDepth)
		q.lanes[channelID] = lane
		q.wg.Add(1)
		go q.drain(channelID, lane)
	}

	select {
	case lane <- work:
	default:
		q.logger.Warn("channel queue full, dropping work", "channel", channelID, "depth", maxDepth)
	}
}

// Size reports the number of items currently pending in channelID's lane.
func (q *ChannelQueue) Size(channelID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	lane, ok := q.lanes[channelID]
	if !ok {
		return 0
	}
	return len(lane)
}

func (q *ChannelQueue) drain(channelID string, lane chan Work) {
	defer q.wg.Done()
	for work := range lane {
		if err := q.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		func() {
			defer q.sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					q.logger.Error("channel work panicked", "channel", channelID, "recover", r)
				}
			}()
			work(q.ctx)
		}()
	}
}
