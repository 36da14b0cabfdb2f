package domain

import "testing"

func TestOrderState_ForwardOnly(t *testing.T) {
	legal := []struct {
		from, to OrderState
	}{
		{OrderPending, OrderSubmitted},
		{OrderPending, OrderCancelled},
		{OrderSubmitted, OrderOpen},
		{OrderSubmitted, OrderRejected},
		{OrderOpen, OrderPartiallyFilled},
		{OrderOpen, OrderFilled},
		{OrderOpen, OrderCancelled},
		{OrderPartiallyFilled, OrderPartiallyFilled},
		{OrderPartiallyFilled, OrderFilled},
		{OrderPartiallyFilled, OrderCancelled},
	}
	for _, tc := range legal {
		if !tc.from.CanTransition(tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	illegal := []struct {
		from, to OrderState
	}{
		{OrderOpen, OrderPending},
		{OrderFilled, OrderOpen},
		{OrderFilled, OrderCancelled},
		{OrderCancelled, OrderOpen},
		{OrderRejected, OrderSubmitted},
		{OrderPartiallyFilled, OrderOpen},
		{OrderPending, OrderFilled},
	}
	for _, tc := range illegal {
		if tc.from.CanTransition(tc.to) {
			t.Errorf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestOrderState_Terminal(t *testing.T) {
	for _, s := range []OrderState{OrderFilled, OrderCancelled, OrderRejected} {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
		for _, next := range []OrderState{OrderPending, OrderSubmitted, OrderOpen, OrderPartiallyFilled, OrderFilled, OrderCancelled, OrderRejected} {
			if s.CanTransition(next) {
				t.Errorf("terminal state %s allows transition to %s", s, next)
			}
		}
	}
	for _, s := range []OrderState{OrderPending, OrderSubmitted, OrderOpen, OrderPartiallyFilled} {
		if s.IsTerminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}
