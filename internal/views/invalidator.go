// Package views keeps per-module rendered views coherent with entity
// mutations happening in other modules.
package views

import (
	"context"
	"log/slog"

	"github.com/tdminh/storecore/internal/coordinator"
	"github.com/tdminh/storecore/internal/storage/cache"
)

// Key prefixes, one cache namespace per module.
const (
	PrefixInventory = "views:inventory:"
	PrefixSuppliers = "views:suppliers:"
	PrefixSales     = "views:sales:"
)

var prefixByModule = map[coordinator.Module]string{
	coordinator.ModuleInventory: PrefixInventory,
	coordinator.ModuleSuppliers: PrefixSuppliers,
	coordinator.ModuleSales:     PrefixSales,
}

// Invalidator subscribes to the coordinator and drops cached views of
// every module other than the event source. The source module already
// knows about its own write; the point is refreshing everyone else.
type Invalidator struct {
	logger *slog.Logger
	cache  cache.ViewCache
}

func NewInvalidator(logger *slog.Logger, viewCache cache.ViewCache) *Invalidator {
	return &Invalidator{
		logger: logger.With(slog.String("service", "view_invalidator")),
		cache:  viewCache,
	}
}

// Register subscribes the invalidator and returns the unsubscribe func.
func (i *Invalidator) Register(coord *coordinator.Coordinator) func() {
	return coord.Subscribe(i.handle)
}

func (i *Invalidator) handle(ctx context.Context, ev coordinator.Event) {
	switch ev.Kind {
	case coordinator.KindUnitCreated, coordinator.KindUnitUpdated, coordinator.KindBarcodeGenerated:
	case coordinator.KindSyncRequested:
		i.invalidateAll(ctx)
		return
	default:
		return
	}

	for module, prefix := range prefixByModule {
		if module == ev.Source {
			continue
		}
		i.invalidate(ctx, prefix, ev)
	}
}

func (i *Invalidator) invalidateAll(ctx context.Context) {
	for _, prefix := range prefixByModule {
		i.invalidate(ctx, prefix, coordinator.Event{Kind: coordinator.KindSyncRequested})
	}
}

func (i *Invalidator) invalidate(ctx context.Context, prefix string, ev coordinator.Event) {
	dropped, err := i.cache.DeleteByPrefix(ctx, prefix)
	if err != nil {
		i.logger.WarnContext(ctx, "view invalidation failed",
			slog.String("prefix", prefix),
			slog.Any("error", err),
		)
		return
	}
	if dropped > 0 {
		i.logger.DebugContext(ctx, "views invalidated",
			slog.String("prefix", prefix),
			slog.String("kind", string(ev.Kind)),
			slog.Int("dropped", dropped),
		)
	}
}
