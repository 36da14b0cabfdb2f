package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/aretelew/pm-bot/internal/domain"
)

// RiskLimits are the hard limits every intent is checked against.
type RiskLimits struct {
	MaxPositionPerMarket int
	MaxTotalExposure     int
	MaxDailyLoss         decimal.Decimal // dollars
}

// RiskController owns positions and the session risk state. It vetoes
// intents that would breach exposure limits and trips the kill switch
// when the session's cumulative realized loss exceeds the daily limit.
// The kill switch is one-way: only an explicit Reset clears it.
type RiskController struct {
	mu         sync.Mutex
	limits     RiskLimits
	positions  map[string]*domain.Position
	realized   decimal.Decimal
	killSwitch bool
	onTrip     func(reason string)
}

// NewRiskController creates a risk controller for a fresh session.
func NewRiskController(limits RiskLimits) *RiskController {
	return &RiskController{
		limits:    limits,
		positions: make(map[string]*domain.Position),
		realized:  decimal.Zero,
	}
}

// SetOnTrip registers the kill-switch callback. It fires exactly once
// per trip, outside the controller's lock.
func (rc *RiskController) SetOnTrip(f func(reason string)) {
	rc.mu.Lock()
	rc.onTrip = f
	rc.mu.Unlock()
}

// Evaluate approves or vetoes an intent. A nil return is approval;
// ErrKillSwitchTripped and *VetoError are the veto outcomes.
func (rc *RiskController) Evaluate(intent domain.Intent) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.killSwitch {
		return domain.ErrKillSwitchTripped
	}

	current := 0
	if p, ok := rc.positions[intent.Ticker]; ok {
		current = p.Quantity
	}
	total := 0
	for _, p := range rc.positions {
		total += absInt(p.Quantity)
	}

	newPosition := current
	if intent.Action == domain.ActionBuy {
		newPosition += intent.Quantity
	} else {
		newPosition -= intent.Quantity
	}
	newTotal := total - absInt(current) + absInt(newPosition)

	if absInt(newPosition) > rc.limits.MaxPositionPerMarket {
		return &domain.VetoError{Reason: fmt.Sprintf(
			"position limit: %d > %d on %s", absInt(newPosition), rc.limits.MaxPositionPerMarket, intent.Ticker)}
	}
	if rc.limits.MaxTotalExposure > 0 && newTotal > rc.limits.MaxTotalExposure {
		return &domain.VetoError{Reason: fmt.Sprintf(
			"total exposure limit: %d > %d", newTotal, rc.limits.MaxTotalExposure)}
	}
	return nil
}

// HandleFill updates the position and session P&L for a confirmed
// fill, tripping the kill switch when the loss limit is breached.
func (rc *RiskController) HandleFill(fill domain.Fill) {
	rc.mu.Lock()
	pos, ok := rc.positions[fill.Ticker]
	if !ok {
		pos = &domain.Position{Ticker: fill.Ticker}
		rc.positions[fill.Ticker] = pos
	}

	pnl := pos.ApplyFill(fill.Action, fill.Price, fill.Count)
	rc.realized = rc.realized.Add(pnl)

	var trip func(string)
	var reason string
	if !rc.killSwitch && rc.realized.LessThan(rc.limits.MaxDailyLoss.Neg()) {
		rc.killSwitch = true
		trip = rc.onTrip
		reason = fmt.Sprintf("daily loss %s exceeds limit %s",
			rc.realized.StringFixed(2), rc.limits.MaxDailyLoss.StringFixed(2))
		slog.Warn("kill switch tripped", "realized", rc.realized.StringFixed(2), "limit", rc.limits.MaxDailyLoss.StringFixed(2))
	}
	rc.mu.Unlock()

	if trip != nil {
		trip(reason)
	}
}

// KillSwitchActive reports whether the kill switch has tripped.
func (rc *RiskController) KillSwitchActive() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.killSwitch
}

// Reset starts a new session: clears the kill switch and the realized
// P&L baseline. Never called automatically.
func (rc *RiskController) Reset() {
	rc.mu.Lock()
	rc.killSwitch = false
	rc.realized = decimal.Zero
	rc.mu.Unlock()
	slog.Info("risk state reset, new session")
}

// RealizedPnL returns the session's cumulative realized P&L.
func (rc *RiskController) RealizedPnL() decimal.Decimal {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.realized
}

// Position returns a copy of the position for ticker.
func (rc *RiskController) Position(ticker string) domain.Position {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if p, ok := rc.positions[ticker]; ok {
		return *p
	}
	return domain.Position{Ticker: ticker}
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
