// Package supabase backs the ordering core with the restaurant's Supabase
// project: it serves the menu the assistant is prompted with and archives
// completed order aggregates.
package supabase

import (
	"context"
	"time"

	"github.com/camperolabs/ordering/order"
)

// Store provides access to Supabase data for the ordering service.
type Store interface {
	// Menu retrieves the active menu, categories in display order.
	Menu(ctx context.Context) ([]Category, error)

	// InsertOrder archives a completed order aggregate.
	InsertOrder(ctx context.Context, o *order.Order) error

	// Close closes the Supabase client and releases resources.
	Close() error
}

// Category groups menu items, e.g. Bebidas, Entrantes, Hamburguesas.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"created_at"`
}

// Item is one orderable menu entry with its available extras.
type Item struct {
	ID          string        `json:"id"`
	CategoryID  string        `json:"category_id"`
	Name        string        `json:"name"`
	Ingredients string        `json:"ingredients"`
	Price       float64       `json:"price"`
	Allergens   []string      `json:"allergens,omitempty"`
	Extras      []ExtraOption `json:"extras,omitempty"`
	IsActive    bool          `json:"is_active"`
}

// ExtraOption is an addition a dish can be ordered with.
type ExtraOption struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// orderRow is the shape of the orders table.
type orderRow struct {
	OrderID     string       `json:"order_id"`
	UserID      string       `json:"user_id"`
	TableNumber *int         `json:"table_number,omitempty"`
	Dishes      []order.Line `json:"dishes"`
	Drinks      []order.Line `json:"drinks"`
	Total       float64      `json:"total"`
	CreatedAt   time.Time    `json:"created_at"`
}
