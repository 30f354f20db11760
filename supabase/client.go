package supabase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/camperolabs/ordering/order"
)

// Config holds Supabase connection configuration
type Config struct {
	URL      string
	APIKey   string
	CacheTTL time.Duration // Default: 5 minutes
}

// Client implements the Store interface using Supabase. The menu changes
// rarely and is read on every conversation start, so it is cached with a
// TTL.
type Client struct {
	client   *supabase.Client
	cacheTTL time.Duration

	mu          sync.RWMutex
	cachedMenu  []Category
	menuExpires time.Time
}

// New creates a new Supabase client
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{
		client:   client,
		cacheTTL: cfg.CacheTTL,
	}, nil
}

// Menu retrieves the active menu: every category with its active items
// and their extra options, ordered for display.
func (c *Client) Menu(ctx context.Context) ([]Category, error) {
	if cached := c.cachedMenuIfFresh(); cached != nil {
		return cached, nil
	}

	var categories []Category
	_, err := c.client.From("menu_categories").
		Select("*", "", false).
		ExecuteTo(&categories)
	if err != nil {
		return nil, fmt.Errorf("failed to get menu categories: %w", err)
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].Position < categories[j].Position
	})

	var items []Item
	_, err = c.client.From("menu_items").
		Select("*", "", false).
		Eq("is_active", "true").
		ExecuteTo(&items)
	if err != nil {
		return nil, fmt.Errorf("failed to get menu items: %w", err)
	}

	byCategory := make(map[string][]Item, len(categories))
	for _, item := range items {
		byCategory[item.CategoryID] = append(byCategory[item.CategoryID], item)
	}
	for i := range categories {
		categories[i].Items = byCategory[categories[i].ID]
	}

	c.cacheMenu(categories)
	return categories, nil
}

// InsertOrder archives a completed order aggregate in the orders table.
func (c *Client) InsertOrder(ctx context.Context, o *order.Order) error {
	row := orderRow{
		OrderID:     o.OrderID,
		UserID:      o.UserID,
		TableNumber: o.TableNumber,
		Dishes:      o.Dishes,
		Drinks:      o.Drinks,
		Total:       o.Total,
		CreatedAt:   time.Now().UTC(),
	}

	_, _, err := c.client.From("orders").
		Insert(row, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", o.OrderID, err)
	}
	return nil
}

// Close closes the Supabase client
func (c *Client) Close() error {
	// Supabase client doesn't require explicit close
	return nil
}

func (c *Client) cachedMenuIfFresh() []Category {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cachedMenu != nil && time.Now().Before(c.menuExpires) {
		return c.cachedMenu
	}
	return nil
}

func (c *Client) cacheMenu(menu []Category) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cachedMenu = menu
	c.menuExpires = time.Now().Add(c.cacheTTL)
}

// Compile-time check that Client implements Store
var _ Store = (*Client)(nil)
