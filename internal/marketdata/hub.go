// Package marketdata merges streamed pushes and polled snapshots into
// one versioned current-state table, the single shared view every
// other component reads.
package marketdata

import (
	"log/slog"
	"sync"
	"time"

	"github.com/aretelew/pm-bot/internal/domain"
)

// Snapshot is an immutable point-in-time view of one market handed to
// subscribers. Version is monotonically non-decreasing per ticker.
type Snapshot struct {
	Market  domain.Market
	Version uint64
}

type entry struct {
	market  domain.Market
	version uint64
}

// Hub holds one entry per ticker. Writes are serialized per hub;
// readers get value copies and never observe a partial update.
// Last-writer-wins is decided by source timestamp, not arrival order:
// a polled snapshot never overwrites a strictly newer streamed value.
type Hub struct {
	mu      sync.RWMutex
	entries map[string]*entry
	subs    []chan Snapshot
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{entries: make(map[string]*entry)}
}

// Subscribe registers a notification channel. Notifications are
// best-effort wake-ups: if a subscriber lags, updates are dropped for
// it and it reads the latest state through Get instead.
func (h *Hub) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 256)
	h.mu.Lock()
	h.subs = append(h.subs, ch)
	h.mu.Unlock()
	return ch
}

// ApplyStreamed merges a streamed update. Returns true if accepted.
func (h *Hub) ApplyStreamed(update domain.Market) bool {
	update.Source = domain.SourceStreamed
	return h.apply(update, true)
}

// ApplyPolled merges a polled snapshot. Returns true if accepted.
func (h *Hub) ApplyPolled(snapshot domain.Market) bool {
	snapshot.Source = domain.SourcePolled
	return h.apply(snapshot, false)
}

func (h *Hub) apply(m domain.Market, streamed bool) bool {
	if err := m.Validate(); err != nil {
		slog.Warn("rejecting invalid market update", "ticker", m.Ticker, "err", err)
		return false
	}

	h.mu.Lock()
	e, ok := h.entries[m.Ticker]
	if !ok {
		e = &entry{}
		h.entries[m.Ticker] = e
	}

	// Not-older-than rule: equal timestamps are accepted so a polled
	// resync can refresh a stalled entry, strictly older data never wins.
	if ok && m.UpdatedUnixM < e.market.UpdatedUnixM {
		h.mu.Unlock()
		return false
	}

	// Streamed ticker events carry no book; keep the last polled book
	// so strategies always see the freshest of both.
	if streamed && len(m.Book.Yes) == 0 && len(m.Book.No) == 0 {
		m.Book = e.market.Book
		if m.Title == "" {
			m.Title = e.market.Title
			m.EventTicker = e.market.EventTicker
			m.Category = e.market.Category
			m.CloseUnixM = e.market.CloseUnixM
		}
	}

	e.market = m
	e.version++
	snap := Snapshot{Market: m, Version: e.version}
	subs := h.subs
	h.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default: // slow subscriber, drop
		}
	}
	return true
}

// Get returns an immutable snapshot for ticker, or ErrNotFound.
func (h *Hub) Get(ticker string) (Snapshot, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e, ok := h.entries[ticker]
	if !ok {
		return Snapshot{}, domain.ErrNotFound
	}
	return Snapshot{Market: e.market, Version: e.version}, nil
}

// Version returns the current version counter for ticker (0 if absent).
func (h *Hub) Version(ticker string) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if e, ok := h.entries[ticker]; ok {
		return e.version
	}
	return 0
}

// Age returns how stale the entry for ticker is, so a strategy can
// refuse to act on data older than its own tolerance.
func (h *Hub) Age(ticker string) (time.Duration, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e, ok := h.entries[ticker]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return time.Duration(time.Now().UnixMicro()-e.market.UpdatedUnixM) * time.Microsecond, nil
}

// Tickers returns all known tickers.
func (h *Hub) Tickers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.entries))
	for t := range h.entries {
		out = append(out, t)
	}
	return out
}
