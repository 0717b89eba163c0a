package checks

import (
	"context"
	"time"

	"github.com/opslink/statuswatch/internal/domain"
)

// Repository stores the append-only check history.
type Repository interface {
	CreateCheck(ctx context.Context, check *domain.Check) error
	// ListChecks returns checks of a service with timestamp >= since, oldest first.
	ListChecks(ctx context.Context, serviceID string, since time.Time) ([]*domain.Check, error)
	// GetLatestCheck returns ErrNoChecks when the service has no history.
	GetLatestCheck(ctx context.Context, serviceID string) (*domain.Check, error)
	DeleteChecksBefore(ctx context.Context, before time.Time) (int64, error)
}
