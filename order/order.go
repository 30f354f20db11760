// Package order defines the order aggregate produced from a parsed
// assistant reply and prepares it for payment.
package order

// Extra is a paid addition attached to a single dish line.
type Extra struct {
	Name      string  `json:"name"`
	UnitPrice float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Exclusion is a removed ingredient on a dish line. Exclusions carry no
// price.
type Exclusion struct {
	Name string `json:"name"`
}

// Line is one orderable item: a dish or a drink. Drinks never carry
// extras or exclusions.
type Line struct {
	Name       string      `json:"name"`
	UnitPrice  float64     `json:"price"`
	Quantity   int         `json:"quantity"`
	Extras     []Extra     `json:"extras,omitempty"`
	Exclusions []Exclusion `json:"exclusions,omitempty"`
}

// Order is the aggregate payload handed to payment and printing
// collaborators.
//
// OrderID and UserID are empty on a freshly parsed order; Build assigns
// them. TableNumber is nil when the summary carried no table line.
type Order struct {
	OrderID     string  `json:"order_id,omitempty"`
	UserID      string  `json:"user_id,omitempty"`
	TableNumber *int    `json:"table_number,omitempty"`
	Dishes      []Line  `json:"dishes"`
	Drinks      []Line  `json:"drinks"`
	Total       float64 `json:"total"`
}

// Empty reports whether the order has no dishes and no drinks.
func (o *Order) Empty() bool {
	return len(o.Dishes) == 0 && len(o.Drinks) == 0
}
