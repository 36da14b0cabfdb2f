package domain

import "fmt"

// DataSource identifies how a market snapshot reached the hub.
type DataSource string

const (
	SourceStreamed DataSource = "streamed"
	SourcePolled   DataSource = "polled"
)

// Market holds the current state of a single prediction market.
// Prices are integer cents (1..99). Timestamps are Unix microseconds.
type Market struct {
	Ticker       string     `json:"ticker"`
	Title        string     `json:"title"`
	EventTicker  string     `json:"event_ticker"`
	Category     string     `json:"category"`
	Status       string     `json:"status"`
	YesBid       int        `json:"yes_bid"`
	YesAsk       int        `json:"yes_ask"`
	NoBid        int        `json:"no_bid"`
	NoAsk        int        `json:"no_ask"`
	LastPrice    int        `json:"last_price"`
	Volume       int        `json:"volume"`
	OpenInterest int        `json:"open_interest"`
	CloseUnixM   int64      `json:"close_time"`
	UpdatedUnixM int64      `json:"last_update"`
	Source       DataSource `json:"source"`
	Book         OrderBook  `json:"book"`
}

// HasQuotes reports whether both sides of the market are quoted.
func (m *Market) HasQuotes() bool {
	return m.YesBid > 0 && m.YesAsk > 0
}

// Validate checks the pricing invariants: bid <= ask when both quoted,
// and strictly ordered orderbook levels on each side.
func (m *Market) Validate() error {
	if m.HasQuotes() && m.YesBid > m.YesAsk {
		return fmt.Errorf("market %s: yes_bid %d > yes_ask %d", m.Ticker, m.YesBid, m.YesAsk)
	}
	if err := m.Book.Validate(); err != nil {
		return fmt.Errorf("market %s: %w", m.Ticker, err)
	}
	return nil
}

// BookLevel is a single price level in an orderbook.
type BookLevel struct {
	Price    int `json:"price"`
	Quantity int `json:"quantity"`
}

// OrderBook is a two-sided book of resting yes/no bids, best level first.
type OrderBook struct {
	Yes []BookLevel `json:"yes"`
	No  []BookLevel `json:"no"`
}

// BestYesBid returns the highest resting yes bid, or false if the side is empty.
func (b *OrderBook) BestYesBid() (int, bool) {
	if len(b.Yes) == 0 {
		return 0, false
	}
	return b.Yes[0].Price, true
}

// BestYesAsk derives the lowest effective yes ask from the no side:
// a resting no bid at price p offers yes contracts at 100-p.
func (b *OrderBook) BestYesAsk() (int, bool) {
	if len(b.No) == 0 {
		return 0, false
	}
	return 100 - b.No[0].Price, true
}

// Mid returns the yes mid-price, or false if either side is empty.
func (b *OrderBook) Mid() (float64, bool) {
	bid, ok := b.BestYesBid()
	if !ok {
		return 0, false
	}
	ask, ok := b.BestYesAsk()
	if !ok {
		return 0, false
	}
	return float64(bid+ask) / 2.0, true
}

// Spread returns the yes bid/ask spread in cents, or false if either side is empty.
func (b *OrderBook) Spread() (int, bool) {
	bid, ok := b.BestYesBid()
	if !ok {
		return 0, false
	}
	ask, ok := b.BestYesAsk()
	if !ok {
		return 0, false
	}
	return ask - bid, true
}

// Validate checks that each side is strictly descending with no duplicate prices.
func (b *OrderBook) Validate() error {
	if err := validateSide("yes", b.Yes); err != nil {
		return err
	}
	return validateSide("no", b.No)
}

func validateSide(name string, levels []BookLevel) error {
	for i := 1; i < len(levels); i++ {
		if levels[i].Price >= levels[i-1].Price {
			return fmt.Errorf("%s side not strictly descending at level %d (%d >= %d)",
				name, i, levels[i].Price, levels[i-1].Price)
		}
	}
	return nil
}
