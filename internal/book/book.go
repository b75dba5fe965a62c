package book

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Errors
var (
	// ErrBookInvalid means the book is between a checksum failure and the
	// next snapshot. Callers tolerate this while a resync is pending.
	ErrBookInvalid = errors.New("order book invalid, resync pending")

	// ErrUnknownBook means no snapshot has ever arrived for the instrument.
	ErrUnknownBook = errors.New("unknown instrument")
)

// Level is one resting price level. The exchange's original price and
// size strings are retained so checksum recomputation is bit-exact; the
// decimal forms drive ordering and zero-size removal.
type Level struct {
	Price  decimal.Decimal
	Size   decimal.Decimal
	Orders int

	PriceRaw string
	SizeRaw  string
}

// ParseLevel converts a wire-level entry [price, size, deprecated,
// orderCount] into a Level.
func ParseLevel(entry []string) (Level, error) {
	if len(entry) < 2 {
		return Level{}, fmt.Errorf("level entry has %d fields, want >= 2", len(entry))
	}

	price, err := decimal.NewFromString(entry[0])
	if err != nil {
		return Level{}, fmt.Errorf("parse price %q: %w", entry[0], err)
	}
	size, err := decimal.NewFromString(entry[1])
	if err != nil {
		return Level{}, fmt.Errorf("parse size %q: %w", entry[1], err)
	}

	lv := Level{
		Price:    price,
		Size:     size,
		PriceRaw: entry[0],
		SizeRaw:  entry[1],
	}

	if len(entry) >= 4 {
		// Field 2 is deprecated on the wire; field 3 is the order count.
		fmt.Sscanf(entry[3], "%d", &lv.Orders)
	}

	return lv, nil
}

// ladder is one side of a book, kept sorted best-first: descending for
// bids, ascending for asks.
type ladder struct {
	levels []Level
	bids   bool
}

// search returns the insertion index for price and whether an exact level
// exists there.
func (l *ladder) search(price decimal.Decimal) (int, bool) {
	idx := sort.Search(len(l.levels), func(i int) bool {
		if l.bids {
			return l.levels[i].Price.LessThanOrEqual(price)
		}
		return l.levels[i].Price.GreaterThanOrEqual(price)
	})
	if idx < len(l.levels) && l.levels[idx].Price.Equal(price) {
		return idx, true
	}
	return idx, false
}

// set inserts or replaces the level at its price.
func (l *ladder) set(lv Level) {
	idx, found := l.search(lv.Price)
	if found {
		l.levels[idx] = lv
		return
	}
	l.levels = append(l.levels, Level{})
	copy(l.levels[idx+1:], l.levels[idx:])
	l.levels[idx] = lv
}

// remove deletes the level at price. Removing an absent price is a no-op.
func (l *ladder) remove(price decimal.Decimal) {
	idx, found := l.search(price)
	if !found {
		return
	}
	l.levels = append(l.levels[:idx], l.levels[idx+1:]...)
}

// trim drops the worst levels beyond max. max <= 0 means unbounded.
func (l *ladder) trim(max int) {
	if max > 0 && len(l.levels) > max {
		l.levels = l.levels[:max]
	}
}

// top returns a copy of the best n levels (all levels when n <= 0).
func (l *ladder) top(n int) []Level {
	if n <= 0 || n > len(l.levels) {
		n = len(l.levels)
	}
	out := make([]Level, n)
	copy(out, l.levels[:n])
	return out
}

// reset replaces the side wholesale.
func (l *ladder) reset(levels []Level) {
	l.levels = l.levels[:0]
	for _, lv := range levels {
		l.set(lv)
	}
}

// Snapshot is an immutable best-effort copy of one instrument's ladder.
type Snapshot struct {
	InstID    string
	Bids      []Level
	Asks      []Level
	Timestamp time.Time
	Checksum  int32
	SeqID     int64
}

// BestBid returns the top bid, if any.
func (s Snapshot) BestBid() (Level, bool) {
	if len(s.Bids) == 0 {
		return Level{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the top ask, if any.
func (s Snapshot) BestAsk() (Level, bool) {
	if len(s.Asks) == 0 {
		return Level{}, false
	}
	return s.Asks[0], true
}
