package event

import (
	"context"
	"time"
)

// FindOptions filters and paginates list queries. Zero values mean
// "no filter"; Limit defaults at the storage layer.
type FindOptions struct {
	Type      Type
	Status    Status
	From      time.Time
	To        time.Time
	Recurring *bool

	Page     int
	Limit    int
	SortBy   string // "scheduledDate" (default), "createdAt", "title"
	SortDesc bool
}

// Repository is the persistence contract consumed by the domain service.
// All find operations return entities, never raw storage records. A missing
// event yields (nil, nil), not an error; the service maps that to
// ErrNotFound.
//
// Implementations must make the single-event load-mutate-persist cycle safe
// against lost updates (single-writer, transaction, or optimistic guard);
// the service relies on that and on idempotent marking instead of locks.
type Repository interface {
	Create(ctx context.Context, e *Event) error
	FindByID(ctx context.Context, id string) (*Event, error)
	FindByIDAndUser(ctx context.Context, id, userID string) (*Event, error)
	FindByAquarium(ctx context.Context, aquariumID string, opts FindOptions) ([]*Event, error)
	FindByUser(ctx context.Context, userID string, opts FindOptions) ([]*Event, error)

	// FindUpcoming returns SCHEDULED events of the user within [now, now+days].
	FindUpcoming(ctx context.Context, userID string, days int) ([]*Event, error)
	// FindOverdue returns the user's SCHEDULED events whose date has passed.
	FindOverdue(ctx context.Context, userID string) ([]*Event, error)
	// FindAllOverdue is FindOverdue across every owner, used by the overdue
	// sweep job.
	FindAllOverdue(ctx context.Context) ([]*Event, error)
	// FindDueReminders returns events that are not yet past and carry at
	// least one unsent reminder. The window is a prefilter optimization; the
	// caller re-checks each reminder with ShouldSend.
	FindDueReminders(ctx context.Context, window time.Duration) ([]*Event, error)

	Update(ctx context.Context, e *Event) error
	Delete(ctx context.Context, id string) error

	// Count operations take an optional status filter ("" = any).
	CountByUser(ctx context.Context, userID string, status Status) (int, error)
	CountByAquarium(ctx context.Context, aquariumID string, status Status) (int, error)
}
