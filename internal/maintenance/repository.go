package maintenance

import (
	"context"
	"time"

	"github.com/opslink/statuswatch/internal/domain"
)

// WindowFilter restricts ListWindows. Zero values disable a condition.
type WindowFilter struct {
	// ActiveAt keeps windows with start <= ActiveAt <= end.
	ActiveAt time.Time
	// EndsAfter keeps windows with end > EndsAfter.
	EndsAfter time.Time
	// ServiceID keeps windows for this service and global windows.
	ServiceID string
	Limit     int
}

// Repository defines the interface for maintenance window storage.
type Repository interface {
	CreateWindow(ctx context.Context, window *domain.MaintenanceWindow) error
	// ListWindows returns matching windows, most recently created first.
	ListWindows(ctx context.Context, filter WindowFilter) ([]*domain.MaintenanceWindow, error)
}
