package cache

import (
	"time"

	"github.com/quantave/quantave/internal/models"
	gocache "github.com/patrickmn/go-cache"
)

// Cache provides fast in-memory caching for market and account data.
// The supervisor writes the latest bar per symbol as it streams; the
// execution engine reads it back as a price fallback for signals that
// carry no price of their own (liquidations).
type Cache struct {
	bars     *gocache.Cache
	accounts *gocache.Cache
	ttl      time.Duration
}

const accountKey = "account"

// NewCache creates a new cache instance
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		bars:     gocache.New(5*time.Minute, 10*time.Minute), // Bars cached longer
		accounts: gocache.New(ttl, ttl*2),
		ttl:      ttl,
	}
}

// GetBar retrieves the latest cached bar for a symbol
func (c *Cache) GetBar(symbol string) (*models.Bar, bool) {
	if val, found := c.bars.Get(symbol); found {
		if bar, ok := val.(*models.Bar); ok {
			return bar, true
		}
	}
	return nil, false
}

// SetBar caches the latest bar for a symbol
func (c *Cache) SetBar(bar *models.Bar) {
	c.bars.Set(bar.Symbol, bar, 5*time.Minute)
}

// GetAccount retrieves a recently fetched account snapshot
func (c *Cache) GetAccount() (*models.Account, bool) {
	if val, found := c.accounts.Get(accountKey); found {
		if account, ok := val.(*models.Account); ok {
			return account, true
		}
	}
	return nil, false
}

// SetAccount caches an account snapshot for the configured TTL
func (c *Cache) SetAccount(account *models.Account) {
	c.accounts.Set(accountKey, account, c.ttl)
}

// Clear removes all cached data
func (c *Cache) Clear() {
	c.bars.Flush()
	c.accounts.Flush()
}

// Stats returns cache statistics
type Stats struct {
	BarCount     int
	AccountCount int
}

// GetStats returns current cache statistics
func (c *Cache) GetStats() Stats {
	return Stats{
		BarCount:     c.bars.ItemCount(),
		AccountCount: c.accounts.ItemCount(),
	}
}
