package engine

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretelew/pm-bot/internal/domain"
)

func testLimits() RiskLimits {
	return RiskLimits{
		MaxPositionPerMarket: 10,
		MaxTotalExposure:     25,
		MaxDailyLoss:         decimal.NewFromInt(100),
	}
}

func buyIntent(ticker string, qty int) domain.Intent {
	return domain.Intent{
		Strategy: "test",
		Ticker:   ticker,
		Action:   domain.ActionBuy,
		Side:     domain.SideYes,
		Price:    50,
		Quantity: qty,
	}
}

func fill(ticker string, action domain.Action, price, count int) domain.Fill {
	return domain.Fill{
		OrderID: "o1",
		Ticker:  ticker,
		Action:  action,
		Side:    domain.SideYes,
		Price:   price,
		Count:   count,
	}
}

func TestRiskController_PositionLimit(t *testing.T) {
	rc := NewRiskController(testLimits())

	require.NoError(t, rc.Evaluate(buyIntent("A", 10)))

	err := rc.Evaluate(buyIntent("A", 11))
	assert.True(t, domain.IsVeto(err), "expected veto, got %v", err)

	// Existing exposure counts toward the cap.
	rc.HandleFill(fill("A", domain.ActionBuy, 50, 8))
	err = rc.Evaluate(buyIntent("A", 3))
	assert.True(t, domain.IsVeto(err), "expected veto at 8+3 > 10, got %v", err)
	assert.NoError(t, rc.Evaluate(buyIntent("A", 2)))
}

func TestRiskController_TotalExposureLimit(t *testing.T) {
	rc := NewRiskController(testLimits())
	rc.HandleFill(fill("A", domain.ActionBuy, 50, 10))
	rc.HandleFill(fill("B", domain.ActionBuy, 50, 10))

	// 20 held, intent for 6 breaches the 25-contract total cap.
	err := rc.Evaluate(buyIntent("C", 6))
	assert.True(t, domain.IsVeto(err), "expected total exposure veto, got %v", err)
	assert.NoError(t, rc.Evaluate(buyIntent("C", 5)))
}

func TestRiskController_KillSwitchOnDailyLoss(t *testing.T) {
	rc := NewRiskController(testLimits())
	var trips int32
	rc.SetOnTrip(func(string) { atomic.AddInt32(&trips, 1) })

	// Two losing round trips: -$60 then -$50 crosses the $100 limit on
	// the second, not the first.
	rc.HandleFill(fill("A", domain.ActionBuy, 70, 10))
	rc.HandleFill(fill("A", domain.ActionSell, 10, 10)) // -60
	assert.False(t, rc.KillSwitchActive(), "tripped at -$60 with $100 limit")
	assert.Equal(t, int32(0), atomic.LoadInt32(&trips))

	rc.HandleFill(fill("B", domain.ActionBuy, 60, 10))
	rc.HandleFill(fill("B", domain.ActionSell, 10, 10)) // -50, total -110
	assert.True(t, rc.KillSwitchActive())
	assert.Equal(t, int32(1), atomic.LoadInt32(&trips))
	assert.True(t, rc.RealizedPnL().Equal(decimal.NewFromInt(-110)))

	// Every intent is now refused, and further losses do not re-trip.
	err := rc.Evaluate(buyIntent("C", 1))
	assert.True(t, errors.Is(err, domain.ErrKillSwitchTripped))

	rc.HandleFill(fill("C", domain.ActionBuy, 90, 5))
	rc.HandleFill(fill("C", domain.ActionSell, 10, 5))
	assert.Equal(t, int32(1), atomic.LoadInt32(&trips), "kill switch re-tripped")
}

func TestRiskController_ResetClearsSession(t *testing.T) {
	rc := NewRiskController(testLimits())

	// Keep booking -$9.80 round trips until the switch trips.
	for !rc.KillSwitchActive() {
		rc.HandleFill(fill("C", domain.ActionBuy, 99, 10))
		rc.HandleFill(fill("C", domain.ActionSell, 1, 10))
	}

	rc.Reset()
	assert.False(t, rc.KillSwitchActive())
	assert.True(t, rc.RealizedPnL().IsZero())
	assert.NoError(t, rc.Evaluate(buyIntent("D", 1)))
}

func TestRiskController_SellReducesExposure(t *testing.T) {
	rc := NewRiskController(testLimits())
	rc.HandleFill(fill("A", domain.ActionBuy, 50, 10))

	// Selling out of a long never increases exposure, so it passes even
	// at the per-market cap.
	sell := domain.Intent{
		Ticker: "A", Action: domain.ActionSell, Side: domain.SideYes, Price: 55, Quantity: 5,
	}
	assert.NoError(t, rc.Evaluate(sell))
}
