// Package maintenancetest holds behaviour tests shared by every maintenance.Repository implementation.
package maintenancetest

import (
	"context"
	"testing"
	"time"

	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/maintenance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RepositoryFactory returns an empty repository for one subtest.
type RepositoryFactory func(t *testing.T) maintenance.Repository

var base = time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)

func create(t *testing.T, repo maintenance.Repository, serviceID string, start, end, created time.Time) *domain.MaintenanceWindow {
	t.Helper()
	w := &domain.MaintenanceWindow{
		ServiceID: serviceID,
		StartTime: start,
		EndTime:   end,
		Reason:    "Scheduled restart",
		CreatedAt: created,
	}
	require.NoError(t, repo.CreateWindow(context.Background(), w))
	require.NotEmpty(t, w.ID)
	return w
}

// RunRepositoryTests exercises a maintenance.Repository implementation.
func RunRepositoryTests(t *testing.T, newRepo RepositoryFactory) {
	t.Run("round trip keeps global windows global", func(t *testing.T) {
		repo := newRepo(t)

		global := create(t, repo, "", base, base.Add(time.Hour), base.Add(-time.Hour))
		scoped := create(t, repo, "c3934795", base, base.Add(time.Hour), base.Add(-time.Minute))

		list, err := repo.ListWindows(context.Background(), maintenance.WindowFilter{})
		require.NoError(t, err)
		require.Len(t, list, 2)

		assert.Equal(t, scoped.ID, list[0].ID, "newest created first")
		assert.Equal(t, "c3934795", list[0].ServiceID)
		assert.Equal(t, global.ID, list[1].ID)
		assert.Empty(t, list[1].ServiceID)
		assert.True(t, base.Equal(list[1].StartTime))
		assert.True(t, base.Add(time.Hour).Equal(list[1].EndTime))
		assert.Equal(t, "Scheduled restart", list[1].Reason)
	})

	t.Run("equal created_at lists the later insert first", func(t *testing.T) {
		repo := newRepo(t)

		first := create(t, repo, "", base, base.Add(time.Hour), base)
		second := create(t, repo, "", base, base.Add(time.Hour), base)

		windows, err := repo.ListWindows(context.Background(), maintenance.WindowFilter{ActiveAt: base})
		require.NoError(t, err)
		require.Len(t, windows, 2)
		assert.Equal(t, second.ID, windows[0].ID)
		assert.Equal(t, first.ID, windows[1].ID)
	})

	t.Run("active at is inclusive", func(t *testing.T) {
		repo := newRepo(t)
		w := create(t, repo, "", base, base.Add(time.Hour), base.Add(-time.Hour))

		for _, at := range []time.Time{base, base.Add(30 * time.Minute), base.Add(time.Hour)} {
			list, err := repo.ListWindows(context.Background(), maintenance.WindowFilter{ActiveAt: at})
			require.NoError(t, err)
			require.Len(t, list, 1, at)
			assert.Equal(t, w.ID, list[0].ID)
		}

		for _, at := range []time.Time{base.Add(-time.Second), base.Add(time.Hour + time.Second)} {
			list, err := repo.ListWindows(context.Background(), maintenance.WindowFilter{ActiveAt: at})
			require.NoError(t, err)
			assert.Empty(t, list, at)
		}
	})

	t.Run("service filter includes global windows", func(t *testing.T) {
		repo := newRepo(t)
		create(t, repo, "", base, base.Add(time.Hour), base.Add(-3*time.Hour))
		create(t, repo, "c3934795", base, base.Add(time.Hour), base.Add(-2*time.Hour))
		create(t, repo, "d1435ec6", base, base.Add(time.Hour), base.Add(-time.Hour))

		list, err := repo.ListWindows(context.Background(), maintenance.WindowFilter{ServiceID: "c3934795"})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "c3934795", list[0].ServiceID)
		assert.Empty(t, list[1].ServiceID)
	})

	t.Run("ends after and limit", func(t *testing.T) {
		repo := newRepo(t)
		create(t, repo, "", base.Add(-2*time.Hour), base.Add(-time.Hour), base.Add(-3*time.Hour))
		future := create(t, repo, "", base.Add(time.Hour), base.Add(2*time.Hour), base.Add(-2*time.Hour))
		current := create(t, repo, "", base.Add(-time.Minute), base.Add(time.Minute), base.Add(-time.Hour))

		list, err := repo.ListWindows(context.Background(), maintenance.WindowFilter{EndsAfter: base})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, current.ID, list[0].ID)
		assert.Equal(t, future.ID, list[1].ID)

		list, err = repo.ListWindows(context.Background(), maintenance.WindowFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, current.ID, list[0].ID)
	})
}
