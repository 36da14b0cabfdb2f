package strategy

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aretelew/pm-bot/internal/domain"
)

func init() {
	Register("arbitrage", func() Strategy { return NewArbitrage() })
}

var thresholdRe = regexp.MustCompile(`(?i)(above|below|over|under|>=?|<=?)\s*([\d.]+)`)

// extractThreshold pulls a numeric threshold out of a market title like
// "GDP growth above 3.0%".
func extractThreshold(title string) (float64, bool) {
	match := thresholdRe.FindStringSubmatch(title)
	if match == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Arbitrage detects price inconsistencies across the markets of one
// event: a higher threshold priced above a lower one (monotonicity
// violation), or mutually exclusive outcomes summing away from 100.
type Arbitrage struct {
	minEdge  int
	quantity int

	mu           sync.Mutex
	eventMarkets map[string][]domain.Market
}

// NewArbitrage creates the strategy with its default parameters.
func NewArbitrage() *Arbitrage {
	return &Arbitrage{
		minEdge:      3,
		quantity:     1,
		eventMarkets: make(map[string][]domain.Market),
	}
}

func (s *Arbitrage) Name() string { return "arbitrage" }

func (s *Arbitrage) ShouldTrade(m domain.Market) bool {
	return m.EventTicker != ""
}

// RegisterMarkets groups the current watch set by parent event for
// cross-comparison. Called by the scanner after each scan.
func (s *Arbitrage) RegisterMarkets(markets []domain.Market) {
	grouped := make(map[string][]domain.Market)
	for _, m := range markets {
		if m.EventTicker != "" {
			grouped[m.EventTicker] = append(grouped[m.EventTicker], m)
		}
	}
	s.mu.Lock()
	s.eventMarkets = grouped
	s.mu.Unlock()
}

func (s *Arbitrage) OnMarketData(m domain.Market, book domain.OrderBook) []domain.Intent {
	s.mu.Lock()
	related := s.eventMarkets[m.EventTicker]
	s.mu.Unlock()
	if len(related) < 2 {
		return nil
	}

	intents := s.checkMonotonicity(related)
	intents = append(intents, s.checkOverround(related)...)
	return intents
}

// checkMonotonicity: if thresholds are ordered, prices must be
// monotonically decreasing; sell the overpriced upper, buy the lower.
func (s *Arbitrage) checkMonotonicity(markets []domain.Market) []domain.Intent {
	type priced struct {
		threshold float64
		market    domain.Market
	}
	var ps []priced
	for _, m := range markets {
		if t, ok := extractThreshold(m.Title); ok && m.LastPrice > 0 {
			ps = append(ps, priced{t, m})
		}
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].threshold < ps[j].threshold })

	now := time.Now().UnixMicro()
	var intents []domain.Intent
	for i := 0; i+1 < len(ps); i++ {
		lower, upper := ps[i].market, ps[i+1].market
		if upper.LastPrice <= lower.LastPrice+s.minEdge {
			continue
		}
		edge := upper.LastPrice - lower.LastPrice
		conf := math.Min(float64(edge)/15.0, 1.0)

		intents = append(intents,
			domain.Intent{
				Strategy:   s.Name(),
				Ticker:     upper.Ticker,
				Action:     domain.ActionSell,
				Side:       domain.SideYes,
				Price:      upper.LastPrice - 1,
				Quantity:   s.quantity,
				Confidence: conf,
				Reason: fmt.Sprintf("monotonicity violation: %s@%dc > %s@%dc (edge=%dc)",
					upper.Ticker, upper.LastPrice, lower.Ticker, lower.LastPrice, edge),
				CreatedUnixM: now,
			},
			domain.Intent{
				Strategy:     s.Name(),
				Ticker:       lower.Ticker,
				Action:       domain.ActionBuy,
				Side:         domain.SideYes,
				Price:        lower.LastPrice + 1,
				Quantity:     s.quantity,
				Confidence:   conf,
				Reason:       fmt.Sprintf("monotonicity arb counterpart: buy %s@%dc", lower.Ticker, lower.LastPrice),
				CreatedUnixM: now,
			})
	}
	return intents
}

// checkOverround: mutually exclusive outcomes should sum to 100; sell
// the most expensive when they sum high, buy the cheapest when low.
func (s *Arbitrage) checkOverround(markets []domain.Market) []domain.Intent {
	total := 0
	for _, m := range markets {
		if m.LastPrice > 0 {
			total += m.LastPrice
		}
	}
	if total <= 0 {
		return nil
	}

	now := time.Now().UnixMicro()
	if total > 100+s.minEdge {
		overround := total - 100
		top := markets[0]
		for _, m := range markets[1:] {
			if m.LastPrice > top.LastPrice {
				top = m
			}
		}
		return []domain.Intent{{
			Strategy:     s.Name(),
			Ticker:       top.Ticker,
			Action:       domain.ActionSell,
			Side:         domain.SideYes,
			Price:        top.LastPrice - 1,
			Quantity:     s.quantity,
			Confidence:   math.Min(float64(overround)/20.0, 1.0),
			Reason:       fmt.Sprintf("overround=%dc (sum=%dc), sell most expensive", overround, total),
			CreatedUnixM: now,
		}}
	}
	if total < 100-s.minEdge {
		underround := 100 - total
		cheapest := domain.Market{LastPrice: 1000}
		for _, m := range markets {
			if m.LastPrice > 0 && m.LastPrice < cheapest.LastPrice {
				cheapest = m
			}
		}
		if cheapest.Ticker == "" {
			return nil
		}
		return []domain.Intent{{
			Strategy:     s.Name(),
			Ticker:       cheapest.Ticker,
			Action:       domain.ActionBuy,
			Side:         domain.SideYes,
			Price:        cheapest.LastPrice + 1,
			Quantity:     s.quantity,
			Confidence:   math.Min(float64(underround)/20.0, 1.0),
			Reason:       fmt.Sprintf("underround=%dc (sum=%dc), buy cheapest", underround, total),
			CreatedUnixM: now,
		}}
	}
	return nil
}
