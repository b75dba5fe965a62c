package book

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/rkarchen/okx-stream/internal/metrics"
	"github.com/rkarchen/okx-stream/internal/wire"
)

// Config holds Order Book Engine tuning.
type Config struct {
	MaxDepth       int // levels retained per side; 0 = unbounded
	ChecksumLevels int // levels per side covered by the checksum
	ResyncBuffer   int // resync request channel depth
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxDepth:       400,
		ChecksumLevels: ChecksumLevels,
		ResyncBuffer:   64,
	}
}

// Stats is a point-in-time view of engine counters.
type Stats struct {
	Books              int
	Snapshots          int64
	Deltas             int64
	ChecksumMismatches int64
	DroppedNoSnapshot  int64
}

// UpdateHandler receives a fresh snapshot copy after every successful
// apply.
type UpdateHandler func(Snapshot)

// InvalidHandler is notified when a book is discarded after drift.
type InvalidHandler func(instID string)

// Engine maintains one book per instrument. Pushes for a given instrument
// must be handed in arrival order; the router's dispatch goroutine is the
// sole caller per connection, and a per-book mutex serializes appliers
// against Snapshot readers.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	onUpdate  UpdateHandler
	onInvalid InvalidHandler

	mu     sync.RWMutex
	books  map[string]*managedBook
	resync chan string

	statsMu            sync.Mutex
	snapshots          int64
	deltas             int64
	checksumMismatches int64
	droppedNoSnapshot  int64
}

// managedBook is the engine-internal state for one instrument.
type managedBook struct {
	mu     sync.Mutex
	instID string
	bids   ladder
	asks   ladder
	ts     time.Time
	seqID  int64
	valid  bool

	// resyncPending suppresses duplicate resync requests between a
	// mismatch and the next snapshot.
	resyncPending bool
}

// NewEngine creates an Order Book Engine.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChecksumLevels == 0 {
		cfg.ChecksumLevels = ChecksumLevels
	}
	if cfg.ResyncBuffer == 0 {
		cfg.ResyncBuffer = DefaultConfig().ResyncBuffer
	}

	return &Engine{
		cfg:    cfg,
		logger: logger,
		books:  make(map[string]*managedBook),
		resync: make(chan string, cfg.ResyncBuffer),
	}
}

// SetUpdateHandler installs the post-apply snapshot callback. Must be
// called before pushes flow.
func (e *Engine) SetUpdateHandler(fn UpdateHandler) {
	e.onUpdate = fn
}

// SetInvalidHandler installs the drift notification callback. Must be
// called before pushes flow.
func (e *Engine) SetInvalidHandler(fn InvalidHandler) {
	e.onInvalid = fn
}

// Resync returns the channel of instrument IDs needing a fresh snapshot.
func (e *Engine) Resync() <-chan string {
	return e.resync
}

// HandleBookPush applies one books-channel push.
func (e *Engine) HandleBookPush(push wire.Push, receivedAt time.Time) error {
	var entries []wire.BookData
	if err := json.Unmarshal(push.Data, &entries); err != nil {
		return fmt.Errorf("parse book data: %w", err)
	}

	instID := push.Arg.InstID
	b := e.getOrCreate(instID)

	for _, data := range entries {
		switch push.Action {
		case wire.ActionSnapshot:
			if err := e.applySnapshot(b, data); err != nil {
				return err
			}
		case wire.ActionUpdate:
			if err := e.applyDelta(b, data); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown book action %q", push.Action)
		}
	}

	return nil
}

// Snapshot returns an immutable copy of the instrument's current ladder.
func (e *Engine) Snapshot(instID string) (Snapshot, error) {
	e.mu.RLock()
	b, ok := e.books[instID]
	e.mu.RUnlock()

	if !ok {
		return Snapshot{}, ErrUnknownBook
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.valid {
		return Snapshot{}, ErrBookInvalid
	}
	return b.snapshotLocked(e.cfg.ChecksumLevels), nil
}

// Forget destroys the instrument's book, e.g. on unsubscribe.
func (e *Engine) Forget(instID string) {
	e.mu.Lock()
	delete(e.books, instID)
	e.mu.Unlock()
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	books := len(e.books)
	e.mu.RUnlock()

	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return Stats{
		Books:              books,
		Snapshots:          e.snapshots,
		Deltas:             e.deltas,
		ChecksumMismatches: e.checksumMismatches,
		DroppedNoSnapshot:  e.droppedNoSnapshot,
	}
}

// getOrCreate returns the managed book for instID, creating it invalid.
func (e *Engine) getOrCreate(instID string) *managedBook {
	e.mu.RLock()
	b, ok := e.books[instID]
	e.mu.RUnlock()
	if ok {
		return b
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok = e.books[instID]; ok {
		return b
	}
	b = &managedBook{instID: instID}
	b.bids.bids = true
	e.books[instID] = b
	return b
}

// applySnapshot replaces both sides wholesale and revalidates the book.
func (e *Engine) applySnapshot(b *managedBook, data wire.BookData) error {
	bids, err := parseLevels(data.Bids)
	if err != nil {
		return fmt.Errorf("snapshot bids: %w", err)
	}
	asks, err := parseLevels(data.Asks)
	if err != nil {
		return fmt.Errorf("snapshot asks: %w", err)
	}

	b.mu.Lock()
	b.bids.reset(bids)
	b.asks.reset(asks)
	b.bids.trim(e.cfg.MaxDepth)
	b.asks.trim(e.cfg.MaxDepth)
	b.advanceClock(data)
	b.valid = true
	b.resyncPending = false
	snap := b.snapshotLocked(e.cfg.ChecksumLevels)
	b.mu.Unlock()

	e.statsMu.Lock()
	e.snapshots++
	e.statsMu.Unlock()
	metrics.BookSnapshots.Inc()

	e.logger.Debug("book snapshot applied",
		"inst_id", b.instID,
		"bids", len(snap.Bids),
		"asks", len(snap.Asks),
	)

	if e.onUpdate != nil {
		e.onUpdate(snap)
	}
	return nil
}

// applyDelta applies one incremental update and verifies the checksum.
func (e *Engine) applyDelta(b *managedBook, data wire.BookData) error {
	b.mu.Lock()

	if !b.valid {
		// Deltas are only meaningful relative to a snapshot; drop and
		// wait for the next one.
		b.mu.Unlock()
		e.statsMu.Lock()
		e.droppedNoSnapshot++
		e.statsMu.Unlock()
		metrics.DroppedFrames.WithLabelValues("delta_without_snapshot").Inc()
		return nil
	}

	if err := applySide(&b.bids, data.Bids); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("delta bids: %w", err)
	}
	if err := applySide(&b.asks, data.Asks); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("delta asks: %w", err)
	}
	b.bids.trim(e.cfg.MaxDepth)
	b.asks.trim(e.cfg.MaxDepth)
	b.advanceClock(data)

	local := Checksum(
		b.bids.top(e.cfg.ChecksumLevels),
		b.asks.top(e.cfg.ChecksumLevels),
		e.cfg.ChecksumLevels,
	)

	if local != data.Checksum {
		e.invalidateLocked(b, local, data.Checksum)
		b.mu.Unlock()
		return nil
	}

	snap := b.snapshotLocked(e.cfg.ChecksumLevels)
	b.mu.Unlock()

	e.statsMu.Lock()
	e.deltas++
	e.statsMu.Unlock()
	metrics.BookDeltas.Inc()

	if e.onUpdate != nil {
		e.onUpdate(snap)
	}
	return nil
}

// invalidateLocked discards a diverged book and requests a resync exactly
// once. Caller holds b.mu.
func (e *Engine) invalidateLocked(b *managedBook, local, declared int32) {
	e.logger.Warn("book checksum mismatch, discarding",
		"inst_id", b.instID,
		"local", local,
		"declared", declared,
	)

	b.bids.levels = nil
	b.asks.levels = nil
	b.valid = false

	e.statsMu.Lock()
	e.checksumMismatches++
	e.statsMu.Unlock()
	metrics.ChecksumMismatches.Inc()

	if e.onInvalid != nil {
		e.onInvalid(b.instID)
	}

	if b.resyncPending {
		return
	}
	b.resyncPending = true

	select {
	case e.resync <- b.instID:
		metrics.BookResyncs.Inc()
	default:
		// A stuck resync consumer must not wedge the read path; the
		// pending flag keeps the request from being lost silently.
		e.logger.Error("resync queue full", "inst_id", b.instID)
	}
}

// applySide applies delta entries to one ladder: size zero removes the
// level (a no-op at absent prices), anything else sets it.
func applySide(l *ladder, entries [][]string) error {
	for _, entry := range entries {
		lv, err := ParseLevel(entry)
		if err != nil {
			return err
		}
		if lv.Size.IsZero() {
			l.remove(lv.Price)
			continue
		}
		l.set(lv)
	}
	return nil
}

// parseLevels converts wire entries into Levels.
func parseLevels(entries [][]string) ([]Level, error) {
	out := make([]Level, 0, len(entries))
	for _, entry := range entries {
		lv, err := ParseLevel(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, lv)
	}
	return out, nil
}

// advanceClock moves the book timestamp and sequence forward, never back.
func (b *managedBook) advanceClock(data wire.BookData) {
	if ms, err := strconv.ParseInt(data.TS, 10, 64); err == nil {
		ts := time.UnixMilli(ms)
		if ts.After(b.ts) {
			b.ts = ts
		}
	}
	if data.SeqID > b.seqID {
		b.seqID = data.SeqID
	}
}

// snapshotLocked copies the ladder. Caller holds b.mu.
func (b *managedBook) snapshotLocked(depth int) Snapshot {
	return Snapshot{
		InstID:    b.instID,
		Bids:      b.bids.top(0),
		Asks:      b.asks.top(0),
		Timestamp: b.ts,
		Checksum:  Checksum(b.bids.top(depth), b.asks.top(depth), depth),
		SeqID:     b.seqID,
	}
}
