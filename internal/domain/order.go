package domain

import "github.com/shopspring/decimal"

// Action is the direction of a trade.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Side is the contract side traded (yes or no).
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// OrderState is the lifecycle state of an order.
type OrderState string

const (
	OrderPending         OrderState = "pending"          // intent accepted, not yet sent
	OrderSubmitted       OrderState = "submitted"        // sent to gateway, no ack
	OrderOpen            OrderState = "open"             // acknowledged, resting
	OrderPartiallyFilled OrderState = "partially_filled" // some quantity filled, still resting
	OrderFilled          OrderState = "filled"
	OrderCancelled       OrderState = "cancelled"
	OrderRejected        OrderState = "rejected"
)

// IsTerminal reports whether the state permits no further transitions.
func (s OrderState) IsTerminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderRejected
}

// nextStates encodes the forward-only lifecycle. Cancellation is reachable
// from any non-terminal state; everything else moves strictly forward.
// PartiallyFilled permits itself: an order can fill in many pieces.
var nextStates = map[OrderState][]OrderState{
	OrderPending:         {OrderSubmitted, OrderCancelled, OrderRejected},
	OrderSubmitted:       {OrderOpen, OrderPartiallyFilled, OrderFilled, OrderCancelled, OrderRejected},
	OrderOpen:            {OrderPartiallyFilled, OrderFilled, OrderCancelled},
	OrderPartiallyFilled: {OrderPartiallyFilled, OrderFilled, OrderCancelled},
}

// CanTransition reports whether moving from s to next is legal.
func (s OrderState) CanTransition(next OrderState) bool {
	for _, n := range nextStates[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Order tracks one exchange order from intent to terminal state.
// ClientID is the client-assigned idempotency token; ExchangeID is
// assigned by the exchange on acknowledgement.
type Order struct {
	ClientID     string
	ExchangeID   string
	Intent       Intent
	State        OrderState
	RequestedQty int
	FilledQty    int
	AvgFillPrice decimal.Decimal // dollars per contract
	RejectReason string
	CreatedUnixM int64
	UpdatedUnixM int64
}

// IsOpen reports whether the order is resting on the exchange.
func (o *Order) IsOpen() bool {
	return o.State == OrderOpen || o.State == OrderPartiallyFilled
}

// Fill is a confirmed execution against a resting order.
type Fill struct {
	TradeID string
	OrderID string // exchange order id
	Ticker  string
	Action  Action
	Side    Side
	Price   int // cents
	Count   int
	TsUnixM int64
}
