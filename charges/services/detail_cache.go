package services

import (
	"context"
	"sync"
	"time"

	"freight-billing-backend/db/models"
	"freight-billing-backend/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DetailView is the expanded reconciliation row shown when a user opens a shipment.
type DetailView struct {
	Charge          ChargeView                  `json:"charge"`
	Rates           RateRepresentation          `json:"rates"`
	StatusLabel     string                      `json:"status_label"`
	StatusColor     string                      `json:"status_color"`
	StatusFontColor string                      `json:"status_font_color"`
	History         []models.ShipmentAuditEvent `json:"history"`
	LoadedAt        time.Time                   `json:"loaded_at"`
}

// DetailSource performs the expensive fetch behind the cache.
type DetailSource interface {
	FetchDetail(ctx context.Context, shipmentID string) (*DetailView, error)
}

// DetailCache memoizes successful detail loads per shipment and never runs two fetches
// for the same key at once. Concurrent callers for a loading key wait for the same result.
type DetailCache struct {
	source  DetailSource
	logger  *zap.Logger
	metrics *metrics.Registry

	group singleflight.Group

	mu         sync.RWMutex
	entries    map[string]*DetailView
	loading    map[string]struct{}
	generation uint64
}

func NewDetailCache(source DetailSource, logger *zap.Logger, m *metrics.Registry) *DetailCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailCache{
		source:  source,
		logger:  logger,
		metrics: m,
		entries: make(map[string]*DetailView),
		loading: make(map[string]struct{}),
	}
}

// Load returns the cached view or fetches it. A failed fetch is not cached.
func (c *DetailCache) Load(ctx context.Context, shipmentID string) (*DetailView, error) {
	c.mu.RLock()
	view, ok := c.entries[shipmentID]
	gen := c.generation
	c.mu.RUnlock()
	if ok {
		c.metrics.CacheResult("hit")
		return view, nil
	}

	ch := c.group.DoChan(shipmentID, func() (interface{}, error) {
		c.mu.Lock()
		// A flight that finished between our read and DoChan already populated the entry.
		if cached, ok := c.entries[shipmentID]; ok {
			c.mu.Unlock()
			return cached, nil
		}
		c.loading[shipmentID] = struct{}{}
		c.mu.Unlock()

		defer func() {
			c.mu.Lock()
			delete(c.loading, shipmentID)
			c.mu.Unlock()
		}()

		c.metrics.CacheResult("miss")
		// The fetch is shared by every waiter, so one caller going away must not cancel it.
		fetched, err := c.source.FetchDetail(context.WithoutCancel(ctx), shipmentID)
		if err != nil {
			c.logger.Warn("Failed to load shipment detail",
				zap.String("shipment_id", shipmentID),
				zap.Error(err))
			return nil, err
		}

		c.mu.Lock()
		// An invalidation during the fetch means the result may use stale reference data.
		if c.generation == gen {
			c.entries[shipmentID] = fetched
		}
		c.mu.Unlock()
		return fetched, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.metrics.CacheResult("shared")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*DetailView), nil
	}
}

// Peek returns a cached view without any I/O.
func (c *DetailCache) Peek(shipmentID string) (*DetailView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	view, ok := c.entries[shipmentID]
	return view, ok
}

// IsLoading reports whether a fetch for shipmentID is in flight.
func (c *DetailCache) IsLoading(shipmentID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.loading[shipmentID]
	return ok
}

// InvalidateAll drops every entry. Called when reference data behind the views changes.
func (c *DetailCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*DetailView)
	c.generation++
	c.mu.Unlock()
	c.logger.Info("Shipment detail cache invalidated")
}

// Forget drops one shipment's entry after its own data changed. Loads already in flight
// are not stored.
func (c *DetailCache) Forget(shipmentID string) {
	c.mu.Lock()
	delete(c.entries, shipmentID)
	c.generation++
	c.mu.Unlock()
}

func (c *DetailCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
