package order

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// OrderIDLength is imposed by the payment gateway: order identifiers must
// be exactly 12 numeric characters.
const OrderIDLength = 12

// Build validates a parsed order and turns it into a payment-ready
// aggregate: the total is recomputed from the line items, a fresh order
// id is assigned and the initiating user is attached.
//
// The total printed in the assistant's reply is advisory only. Generated
// text cannot be trusted with arithmetic on money, so Build always
// recomputes from unit prices and quantities, rounding half-up to cents.
func Build(parsed *Order, userID string) (*Order, error) {
	if parsed == nil || parsed.Empty() {
		return nil, ErrEmptyOrder
	}

	for _, l := range parsed.Dishes {
		if err := validateLine(l); err != nil {
			return nil, err
		}
	}
	for _, l := range parsed.Drinks {
		if err := validateLine(l); err != nil {
			return nil, err
		}
		if len(l.Extras) > 0 || len(l.Exclusions) > 0 {
			return nil, fmt.Errorf("%w: drink %q carries extras", ErrInvalidLine, l.Name)
		}
	}

	built := *parsed
	built.OrderID = NewOrderID()
	built.UserID = userID
	built.Total = computeTotal(parsed)
	return &built, nil
}

func validateLine(l Line) error {
	if l.UnitPrice < 0 || l.Quantity < 1 {
		return fmt.Errorf("%w: %q", ErrInvalidLine, l.Name)
	}
	for _, e := range l.Extras {
		if e.UnitPrice < 0 || e.Quantity < 1 {
			return fmt.Errorf("%w: extra %q", ErrInvalidLine, e.Name)
		}
	}
	return nil
}

// computeTotal sums every line and extra contribution in integer cents to
// keep float error out of the money path, then converts back to euros.
func computeTotal(o *Order) float64 {
	var cents int64
	for _, l := range o.Dishes {
		cents += toCents(l.UnitPrice) * int64(l.Quantity)
		for _, e := range l.Extras {
			cents += toCents(e.UnitPrice) * int64(e.Quantity)
		}
	}
	for _, l := range o.Drinks {
		cents += toCents(l.UnitPrice) * int64(l.Quantity)
	}
	return float64(cents) / 100
}

// toCents rounds a euro amount half-up to whole cents.
func toCents(amount float64) int64 {
	return int64(amount*100 + 0.5)
}

// NewOrderID returns a fresh 12-character numeric order identifier: a
// compact yymmddhh timestamp followed by a 4-digit random suffix. Every
// payment attempt gets a new id; ids are never reused across retries.
func NewOrderID() string {
	return time.Now().Format("06010215") + fmt.Sprintf("%04d", rand.IntN(10000))
}
