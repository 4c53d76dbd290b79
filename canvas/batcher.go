package canvas

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/graphstore"
)

// DefaultFrameInterval matches a 60fps rendering frame.
const DefaultFrameInterval = 16 * time.Millisecond

// PositionBatcher coalesces high-frequency drag events into one store
// transaction per rendering frame. Only the latest position per node
// survives a frame, so an earlier, superseded event can never overwrite a
// later one. Close cancels any scheduled flush.
type PositionBatcher struct {
	store    *graphstore.Store
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[diagram.NodeID]diagram.Point
	timer   *time.Timer
	closed  bool
}

// BatcherOption configures a PositionBatcher.
type BatcherOption func(*PositionBatcher)

// WithFrameInterval overrides the flush interval.
func WithFrameInterval(d time.Duration) BatcherOption {
	return func(b *PositionBatcher) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithBatcherLogger sets the structured logger.
func WithBatcherLogger(logger *slog.Logger) BatcherOption {
	return func(b *PositionBatcher) { b.logger = logger }
}

// NewPositionBatcher creates a batcher writing into the given store.
func NewPositionBatcher(store *graphstore.Store, opts ...BatcherOption) *PositionBatcher {
	b := &PositionBatcher{
		store:    store,
		interval: DefaultFrameInterval,
		logger:   slog.Default(),
		pending:  make(map[diagram.NodeID]diagram.Point),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Push records a position event for a node. The write is deferred to the
// next frame flush; repeated pushes for the same node within a frame keep
// only the latest position.
func (b *PositionBatcher) Push(id diagram.NodeID, pos diagram.Point) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.pending[id] = pos.Clamp()
	if b.timer == nil {
		b.timer = time.AfterFunc(b.interval, b.flushTimer)
	}
}

// flushTimer is the scheduled frame flush.
func (b *PositionBatcher) flushTimer() {
	b.mu.Lock()
	b.timer = nil
	b.mu.Unlock()
	b.Flush()
}

// Flush commits all pending positions as a single transaction. It is a no-op
// when nothing is pending.
func (b *PositionBatcher) Flush() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make(map[diagram.NodeID]diagram.Point)
	b.mu.Unlock()

	err := b.store.Transaction(func(tx *graphstore.Tx) error {
		for id, pos := range batch {
			tx.MoveNode(id, pos)
		}
		return nil
	})
	if err != nil {
		b.logger.Warn("position batch flush failed", "nodes", len(batch), "error", err)
	}
}

// EndDrag records the final resting position of a drag gesture and flushes
// immediately, so the final position commits exactly once. A later frame
// tick finds nothing pending and commits nothing.
func (b *PositionBatcher) EndDrag(id diagram.NodeID, pos diagram.Point) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.pending[id] = pos.Clamp()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()
	b.Flush()
}

// Close cancels any scheduled flush and discards pending writes. Used on
// component teardown, where a deferred write after unmount would be stale.
func (b *PositionBatcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = nil
}
