package kalshi

import (
	"time"

	"github.com/aretelew/pm-bot/internal/domain"
)

// Wire types for the exchange REST API. Converted to domain types at
// the gateway boundary; nothing outside this package touches them.

type marketDTO struct {
	Ticker       string    `json:"ticker"`
	Title        string    `json:"title"`
	EventTicker  string    `json:"event_ticker"`
	Category     string    `json:"category"`
	Status       string    `json:"status"`
	YesBid       int       `json:"yes_bid"`
	YesAsk       int       `json:"yes_ask"`
	NoBid        int       `json:"no_bid"`
	NoAsk        int       `json:"no_ask"`
	LastPrice    int       `json:"last_price"`
	Volume       int       `json:"volume"`
	OpenInterest int       `json:"open_interest"`
	CloseTime    time.Time `json:"close_time"`
}

func (d *marketDTO) toDomain(now int64) domain.Market {
	m := domain.Market{
		Ticker:       d.Ticker,
		Title:        d.Title,
		EventTicker:  d.EventTicker,
		Category:     d.Category,
		Status:       d.Status,
		YesBid:       d.YesBid,
		YesAsk:       d.YesAsk,
		NoBid:        d.NoBid,
		NoAsk:        d.NoAsk,
		LastPrice:    d.LastPrice,
		Volume:       d.Volume,
		OpenInterest: d.OpenInterest,
		UpdatedUnixM: now,
		Source:       domain.SourcePolled,
	}
	if !d.CloseTime.IsZero() {
		m.CloseUnixM = d.CloseTime.UnixMicro()
	}
	return m
}

type marketsResponse struct {
	Markets []marketDTO `json:"markets"`
	Cursor  string      `json:"cursor"`
}

type marketResponse struct {
	Market marketDTO `json:"market"`
}

// orderbookDTO carries each side as ascending [price, quantity] pairs,
// which is how the exchange serializes books.
type orderbookDTO struct {
	Orderbook struct {
		Yes [][2]int `json:"yes"`
		No  [][2]int `json:"no"`
	} `json:"orderbook"`
}

// toDomain reverses each side so the best (highest) bid comes first.
func (d *orderbookDTO) toDomain() domain.OrderBook {
	return domain.OrderBook{
		Yes: reverseLevels(d.Orderbook.Yes),
		No:  reverseLevels(d.Orderbook.No),
	}
}

func reverseLevels(raw [][2]int) []domain.BookLevel {
	levels := make([]domain.BookLevel, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		levels = append(levels, domain.BookLevel{Price: raw[i][0], Quantity: raw[i][1]})
	}
	return levels
}

type orderRequest struct {
	Ticker        string `json:"ticker"`
	Action        string `json:"action"`
	Side          string `json:"side"`
	Count         int    `json:"count"`
	Type          string `json:"type"`
	YesPrice      *int   `json:"yes_price,omitempty"`
	NoPrice       *int   `json:"no_price,omitempty"`
	ClientOrderID string `json:"client_order_id"`
}

type orderDTO struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"`
	RemainingCount int    `json:"remaining_count"`
	ClientOrderID  string `json:"client_order_id"`
}

type orderResponse struct {
	Order orderDTO `json:"order"`
}

type ordersResponse struct {
	Orders []orderDTO `json:"orders"`
	Cursor string     `json:"cursor"`
}

type fillDTO struct {
	TradeID   string    `json:"trade_id"`
	OrderID   string    `json:"order_id"`
	Ticker    string    `json:"ticker"`
	Action    string    `json:"action"`
	Side      string    `json:"side"`
	Count     int       `json:"count"`
	YesPrice  int       `json:"yes_price"`
	NoPrice   int       `json:"no_price"`
	CreatedAt time.Time `json:"created_time"`
}

func (d *fillDTO) toDomain() domain.Fill {
	price := d.YesPrice
	if domain.Side(d.Side) == domain.SideNo {
		price = d.NoPrice
	}
	return domain.Fill{
		TradeID: d.TradeID,
		OrderID: d.OrderID,
		Ticker:  d.Ticker,
		Action:  domain.Action(d.Action),
		Side:    domain.Side(d.Side),
		Price:   price,
		Count:   d.Count,
		TsUnixM: d.CreatedAt.UnixMicro(),
	}
}

type fillsResponse struct {
	Fills  []fillDTO `json:"fills"`
	Cursor string    `json:"cursor"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"` // cents
}

// Streaming wire types.

type wsCommand struct {
	ID     int      `json:"id"`
	Cmd    string   `json:"cmd"`
	Params wsParams `json:"params"`
}

type wsParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers,omitempty"`
}

type wsEnvelope struct {
	Type string       `json:"type"`
	Msg  wsTickerData `json:"msg"`
}

type wsTickerData struct {
	MarketTicker string `json:"market_ticker"`
	YesBid       int    `json:"yes_bid"`
	YesAsk       int    `json:"yes_ask"`
	Price        int    `json:"price"`
	Volume       int    `json:"volume"`
	OpenInterest int    `json:"open_interest"`
	TsUnixMS     int64  `json:"ts"`
}
