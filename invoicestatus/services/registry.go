package services

import (
	"context"
	"sort"
	"sync"
	"time"

	seed "freight-billing-backend/db"
	"freight-billing-backend/db/models"
	"freight-billing-backend/metrics"
	"freight-billing-backend/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CatalogStore is one readable status collection.
type CatalogStore interface {
	Name() string
	ListStatuses(ctx context.Context) ([]models.InvoiceStatusDefinition, error)
	SeedDefaults(ctx context.Context, createdBy string) (int64, error)
}

const (
	catalogSourcePrimary  = "primary"
	catalogSourceSeeded   = "seeded"
	catalogSourceFallback = "fallback"
	catalogSourceDefaults = "defaults"
	catalogSourceCache    = "cache"

	seedActor = "system"
)

// Registry is the authoritative reader of the invoice status catalog.
type Registry struct {
	primary  CatalogStore
	fallback CatalogStore
	ttl      time.Duration
	logger   *zap.Logger
	metrics  *metrics.Registry
	now      func() time.Time

	seedGroup singleflight.Group

	mu       sync.RWMutex
	cached   []models.InvoiceStatusDefinition
	cachedAt time.Time
	lastSeen []models.InvoiceStatusDefinition

	listenersMu sync.Mutex
	listeners   []func()
}

// NewRegistry builds a registry. fallback may be nil. A ttl of zero revalidates on every call.
func NewRegistry(primary, fallback CatalogStore, ttl time.Duration, logger *zap.Logger, m *metrics.Registry) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		primary:  primary,
		fallback: fallback,
		ttl:      ttl,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// OnChange registers fn to run whenever a load observes a catalog different from the previous one.
func (r *Registry) OnChange(fn func()) {
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, fn)
	r.listenersMu.Unlock()
}

// Invalidate drops the cached catalog and fires change listeners.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.cachedAt = time.Time{}
	r.mu.Unlock()
	r.fireChange()
}

// LoadStatuses returns the catalog sorted by sort order then label. An empty primary catalog
// is seeded exactly once. If the primary store is unreachable the alternate collection is read,
// and if that also fails the built-in defaults are returned without being persisted.
func (r *Registry) LoadStatuses(ctx context.Context) ([]models.InvoiceStatusDefinition, error) {
	if cached, ok := r.fromCache(); ok {
		r.metrics.CatalogLoad(catalogSourceCache)
		return cached, nil
	}

	statuses, err := r.primary.ListStatuses(ctx)
	if err != nil {
		r.logger.Warn("Primary status catalog unreachable, trying fallback",
			zap.String("store", r.primary.Name()),
			zap.Error(err))
		return r.loadFallback(ctx), nil
	}

	source := catalogSourcePrimary
	if len(statuses) == 0 {
		statuses, err = r.seedOnce(ctx)
		if err != nil {
			r.logger.Error("Failed to seed status catalog, using built-in defaults", zap.Error(err))
			r.metrics.CatalogLoad(catalogSourceDefaults)
			return sortStatuses(seed.DefaultInvoiceStatuses()), nil
		}
		source = catalogSourceSeeded
	}

	statuses = sortStatuses(statuses)
	r.metrics.CatalogLoad(source)
	r.store(statuses)
	return cloneStatuses(statuses), nil
}

// LookupStatus finds code in the current catalog.
func (r *Registry) LookupStatus(ctx context.Context, code string) (*models.InvoiceStatusDefinition, error) {
	statuses, err := r.LoadStatuses(ctx)
	if err != nil {
		return nil, err
	}
	for i := range statuses {
		if statuses[i].StatusCode == code {
			return &statuses[i], nil
		}
	}
	return nil, utils.NewAppError(utils.KindNotFound, "lookup invoice status", "unknown status code").WithID(code)
}

// ValidateDefault fails unless the default status exists and is enabled.
func (r *Registry) ValidateDefault(ctx context.Context) error {
	status, err := r.LookupStatus(ctx, models.DefaultInvoiceStatusCode)
	if err != nil {
		return utils.NewAppError(utils.KindDataIntegrity, "validate status catalog", "default status missing").
			WithID(models.DefaultInvoiceStatusCode).Wrap(err)
	}
	if !status.Enabled {
		return utils.NewAppError(utils.KindDataIntegrity, "validate status catalog", "default status disabled").
			WithID(models.DefaultInvoiceStatusCode)
	}
	return nil
}

// seedOnce collapses concurrent seeders into one. The insert itself is an upsert keyed by
// status_code, so a seed racing another process still cannot duplicate rows.
func (r *Registry) seedOnce(ctx context.Context) ([]models.InvoiceStatusDefinition, error) {
	v, err, _ := r.seedGroup.Do("seed", func() (interface{}, error) {
		statuses, err := r.primary.ListStatuses(ctx)
		if err != nil {
			return nil, err
		}
		if len(statuses) > 0 {
			return statuses, nil
		}

		inserted, err := r.primary.SeedDefaults(ctx, seedActor)
		if err != nil {
			return nil, err
		}
		r.logger.Info("Seeded invoice status catalog",
			zap.String("store", r.primary.Name()),
			zap.Int64("inserted", inserted))

		return r.primary.ListStatuses(ctx)
	})
	if err != nil {
		return nil, err
	}
	return cloneStatuses(v.([]models.InvoiceStatusDefinition)), nil
}

func (r *Registry) loadFallback(ctx context.Context) []models.InvoiceStatusDefinition {
	if r.fallback != nil {
		statuses, err := r.fallback.ListStatuses(ctx)
		if err == nil && len(statuses) > 0 {
			r.metrics.CatalogLoad(catalogSourceFallback)
			return sortStatuses(statuses)
		}
		r.logger.Warn("Fallback status catalog unavailable, using built-in defaults",
			zap.String("store", r.fallback.Name()),
			zap.Int("count", len(statuses)),
			zap.Error(err))
	}
	r.metrics.CatalogLoad(catalogSourceDefaults)
	return sortStatuses(seed.DefaultInvoiceStatuses())
}

func (r *Registry) fromCache() ([]models.InvoiceStatusDefinition, bool) {
	if r.ttl <= 0 {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cached == nil || r.now().Sub(r.cachedAt) >= r.ttl {
		return nil, false
	}
	return cloneStatuses(r.cached), true
}

func (r *Registry) store(statuses []models.InvoiceStatusDefinition) {
	r.mu.Lock()
	changed := r.lastSeen != nil && !sameCatalog(r.lastSeen, statuses)
	r.lastSeen = cloneStatuses(statuses)
	if r.ttl > 0 {
		r.cached = cloneStatuses(statuses)
		r.cachedAt = r.now()
	}
	r.mu.Unlock()

	if changed {
		r.logger.Info("Invoice status catalog changed", zap.Int("count", len(statuses)))
		r.fireChange()
	}
}

func (r *Registry) fireChange() {
	r.listenersMu.Lock()
	listeners := append([]func(){}, r.listeners...)
	r.listenersMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func sortStatuses(statuses []models.InvoiceStatusDefinition) []models.InvoiceStatusDefinition {
	sort.SliceStable(statuses, func(i, j int) bool {
		if statuses[i].SortOrder != statuses[j].SortOrder {
			return statuses[i].SortOrder < statuses[j].SortOrder
		}
		return statuses[i].StatusLabel < statuses[j].StatusLabel
	})
	return statuses
}

func cloneStatuses(statuses []models.InvoiceStatusDefinition) []models.InvoiceStatusDefinition {
	if statuses == nil {
		return nil
	}
	out := make([]models.InvoiceStatusDefinition, len(statuses))
	copy(out, statuses)
	return out
}

func sameCatalog(a, b []models.InvoiceStatusDefinition) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].StatusCode != b[i].StatusCode ||
			a[i].StatusLabel != b[i].StatusLabel ||
			a[i].Color != b[i].Color ||
			a[i].FontColor != b[i].FontColor ||
			a[i].SortOrder != b[i].SortOrder ||
			a[i].Enabled != b[i].Enabled {
			return false
		}
	}
	return true
}
