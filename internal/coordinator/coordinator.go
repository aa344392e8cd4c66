// Package coordinator is the in-process notification fabric between the
// inventory, supplier, and sales modules. Events are one-shot and
// fire-and-forget: no retry, no persistence, no delivery guarantee beyond
// "every currently subscribed listener gets called once".
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the coordination event kinds.
type Kind string

const (
	KindUnitCreated      Kind = "unit_created"
	KindUnitUpdated      Kind = "unit_updated"
	KindBarcodeGenerated Kind = "barcode_generated"
	KindPrintRequested   Kind = "print_requested"
	KindSyncRequested    Kind = "sync_requested"
)

// Module names the module a subscriber belongs to or an event originates
// from. Subscribers conventionally ignore events from their own module and
// invalidate their cached views on everyone else's.
type Module string

const (
	ModuleInventory Module = "inventory"
	ModuleSuppliers Module = "suppliers"
	ModuleSales     Module = "sales"
	ModuleIntegrity Module = "integrity"
)

// Event is one coordination notification.
type Event struct {
	Kind       Kind           `json:"kind"`
	Source     Module         `json:"source"`
	EntityID   uuid.UUID      `json:"entity_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Listener receives events synchronously. A panicking listener is recovered
// and logged; it never stops delivery to the remaining listeners.
type Listener func(ctx context.Context, ev Event)

// Coordinator fans events out to subscribed listeners. Construct once at
// startup and hand to every module; there is deliberately no package-level
// instance.
type Coordinator struct {
	logger *slog.Logger

	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

func New(logger *slog.Logger) *Coordinator {
	return &Coordinator{
		logger:    logger.With(slog.String("service", "coordinator")),
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers a listener and returns its unsubscribe function.
// Unsubscribing twice is harmless.
func (c *Coordinator) Subscribe(listener Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = listener
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Notify delivers the event to every listener subscribed at call time.
// Delivery is synchronous and in-process; Notify itself never fails.
func (c *Coordinator) Notify(ctx context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	c.mu.Lock()
	snapshot := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		snapshot = append(snapshot, l)
	}
	c.mu.Unlock()

	for _, listener := range snapshot {
		c.deliver(ctx, listener, ev)
	}
}

func (c *Coordinator) deliver(ctx context.Context, listener Listener, ev Event) {
	defer func() {
		if rvr := recover(); rvr != nil {
			c.logger.ErrorContext(ctx, "panic in event listener",
				slog.String("kind", string(ev.Kind)),
				slog.String("source", string(ev.Source)),
				slog.Any("recover", fmt.Sprintf("%v", rvr)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	listener(ctx, ev)
}
