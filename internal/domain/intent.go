package domain

// Intent is a strategy's proposed trade, prior to risk approval.
// It is created once by the strategy runner and never mutated.
// Token is the client-assigned idempotency token: resubmitting an
// intent with the same token must never produce two resting orders.
type Intent struct {
	Strategy     string
	Ticker       string
	Action       Action
	Side         Side
	Price        int // limit price in cents; 0 means marketable
	Quantity     int
	Confidence   float64
	Reason       string
	Token        string
	CreatedUnixM int64
}

// Marketable reports whether the intent carries no limit price.
func (i *Intent) Marketable() bool {
	return i.Price <= 0
}
