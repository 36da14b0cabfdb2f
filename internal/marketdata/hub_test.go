package marketdata

import (
	"errors"
	"testing"

	"github.com/aretelew/pm-bot/internal/domain"
)

func mk(ticker string, last int, ts int64) domain.Market {
	return domain.Market{
		Ticker:       ticker,
		YesBid:       last - 1,
		YesAsk:       last + 1,
		LastPrice:    last,
		Volume:       100,
		UpdatedUnixM: ts,
	}
}

func TestHub_VersionMonotonic(t *testing.T) {
	h := NewHub()

	if !h.ApplyPolled(mk("A", 50, 100)) {
		t.Fatal("first update rejected")
	}
	if v := h.Version("A"); v != 1 {
		t.Errorf("version = %d, want 1", v)
	}

	h.ApplyStreamed(mk("A", 51, 200))
	h.ApplyPolled(mk("A", 52, 300))
	if v := h.Version("A"); v != 3 {
		t.Errorf("version = %d, want 3", v)
	}
}

func TestHub_StaleUpdateRejected(t *testing.T) {
	h := NewHub()
	h.ApplyStreamed(mk("A", 60, 1000))

	// A polled snapshot with an older source timestamp must not win,
	// regardless of arrival order.
	if h.ApplyPolled(mk("A", 40, 500)) {
		t.Error("stale polled snapshot accepted over newer streamed value")
	}
	snap, err := h.Get("A")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Market.LastPrice != 60 {
		t.Errorf("last price = %d, want 60", snap.Market.LastPrice)
	}
	if snap.Version != 1 {
		t.Errorf("version advanced on rejected update: %d", snap.Version)
	}
}

func TestHub_EqualTimestampAccepted(t *testing.T) {
	h := NewHub()
	h.ApplyStreamed(mk("A", 60, 1000))

	// Equal timestamps refresh the entry (resync case).
	if !h.ApplyPolled(mk("A", 61, 1000)) {
		t.Error("equal-timestamp polled refresh rejected")
	}
	snap, _ := h.Get("A")
	if snap.Market.LastPrice != 61 || snap.Version != 2 {
		t.Errorf("got price=%d version=%d", snap.Market.LastPrice, snap.Version)
	}
}

func TestHub_InvalidUpdateRejected(t *testing.T) {
	h := NewHub()
	crossed := domain.Market{Ticker: "A", YesBid: 60, YesAsk: 40, UpdatedUnixM: 100}
	if h.ApplyPolled(crossed) {
		t.Error("crossed market accepted")
	}
	if _, err := h.Get("A"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHub_StreamedInheritsBook(t *testing.T) {
	h := NewHub()

	polled := mk("A", 50, 100)
	polled.Title = "Test market"
	polled.Book = domain.OrderBook{
		Yes: []domain.BookLevel{{Price: 49, Quantity: 10}},
		No:  []domain.BookLevel{{Price: 52, Quantity: 10}},
	}
	h.ApplyPolled(polled)

	// Streamed ticker events carry no book; the merged entry keeps the
	// polled book and metadata.
	h.ApplyStreamed(mk("A", 55, 200))

	snap, _ := h.Get("A")
	if snap.Market.LastPrice != 55 {
		t.Errorf("last price = %d, want 55", snap.Market.LastPrice)
	}
	if len(snap.Market.Book.Yes) != 1 {
		t.Error("streamed update dropped the polled book")
	}
	if snap.Market.Title != "Test market" {
		t.Errorf("streamed update dropped metadata: %q", snap.Market.Title)
	}
	if snap.Market.Source != domain.SourceStreamed {
		t.Errorf("source = %s, want streamed", snap.Market.Source)
	}
}

func TestHub_SubscribeNotifies(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()

	h.ApplyPolled(mk("A", 50, 100))

	select {
	case snap := <-ch:
		if snap.Market.Ticker != "A" || snap.Version != 1 {
			t.Errorf("unexpected snapshot %+v", snap)
		}
	default:
		t.Fatal("no notification delivered")
	}
}

func TestHub_Tickers(t *testing.T) {
	h := NewHub()
	h.ApplyPolled(mk("A", 50, 100))
	h.ApplyPolled(mk("B", 30, 100))

	if got := len(h.Tickers()); got != 2 {
		t.Errorf("tickers = %d, want 2", got)
	}
}
