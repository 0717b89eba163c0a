// Package checkstest holds behaviour tests shared by every checks.Repository implementation.
package checkstest

import (
	"context"
	"testing"
	"time"

	"github.com/opslink/statuswatch/internal/checks"
	"github.com/opslink/statuswatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RepositoryFactory returns an empty repository for one subtest.
type RepositoryFactory func(t *testing.T) checks.Repository

var base = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

// RunRepositoryTests exercises a checks.Repository implementation.
func RunRepositoryTests(t *testing.T, newRepo RepositoryFactory) {
	t.Run("create assigns id and round-trips fields", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		check := &domain.Check{
			ServiceID: "1",
			Status:    domain.StatusDown,
			Timestamp: base,
			Reason:    strPtr("Server is offline"),
		}
		require.NoError(t, repo.CreateCheck(ctx, check))
		assert.NotEmpty(t, check.ID)

		latest, err := repo.GetLatestCheck(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, check.ID, latest.ID)
		assert.Equal(t, domain.StatusDown, latest.Status)
		assert.True(t, base.Equal(latest.Timestamp))
		require.NotNil(t, latest.Reason)
		assert.Equal(t, "Server is offline", *latest.Reason)
		assert.Nil(t, latest.IncidentID)
	})

	t.Run("latest of unknown service", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.GetLatestCheck(context.Background(), "missing")
		assert.ErrorIs(t, err, checks.ErrNoChecks)
	})

	t.Run("list is ascending and filtered", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for i := 4; i >= 0; i-- {
			require.NoError(t, repo.CreateCheck(ctx, &domain.Check{
				ServiceID: "1",
				Status:    domain.StatusUp,
				Timestamp: base.Add(time.Duration(i) * time.Minute),
			}))
		}
		require.NoError(t, repo.CreateCheck(ctx, &domain.Check{
			ServiceID: "2",
			Status:    domain.StatusDown,
			Timestamp: base,
		}))

		all, err := repo.ListChecks(ctx, "1", time.Time{})
		require.NoError(t, err)
		require.Len(t, all, 5)
		for i := range all {
			assert.True(t, base.Add(time.Duration(i)*time.Minute).Equal(all[i].Timestamp))
		}

		recent, err := repo.ListChecks(ctx, "1", base.Add(3*time.Minute))
		require.NoError(t, err)
		assert.Len(t, recent, 2)

		latest, err := repo.GetLatestCheck(ctx, "1")
		require.NoError(t, err)
		assert.True(t, base.Add(4*time.Minute).Equal(latest.Timestamp))
	})

	t.Run("equal timestamps keep insertion order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		statuses := []domain.Status{domain.StatusDown, domain.StatusUp, domain.StatusDown, domain.StatusUp, domain.StatusDegraded}
		ids := make([]string, 0, len(statuses))
		for _, st := range statuses {
			c := &domain.Check{ServiceID: "1", Status: st, Timestamp: base}
			require.NoError(t, repo.CreateCheck(ctx, c))
			ids = append(ids, c.ID)

			latest, err := repo.GetLatestCheck(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, c.ID, latest.ID, "latest is the last inserted")
			assert.Equal(t, st, latest.Status)
		}

		history, err := repo.ListChecks(ctx, "1", time.Time{})
		require.NoError(t, err)
		require.Len(t, history, len(ids))
		for i, c := range history {
			assert.Equal(t, ids[i], c.ID)
		}
	})

	t.Run("list of unknown service is empty", func(t *testing.T) {
		repo := newRepo(t)

		history, err := repo.ListChecks(context.Background(), "missing", time.Time{})
		require.NoError(t, err)
		assert.NotNil(t, history)
		assert.Empty(t, history)
	})

	t.Run("delete before", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			require.NoError(t, repo.CreateCheck(ctx, &domain.Check{
				ServiceID: "1",
				Status:    domain.StatusUp,
				Timestamp: base.Add(time.Duration(i) * time.Hour),
			}))
		}

		deleted, err := repo.DeleteChecksBefore(ctx, base.Add(90*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		rest, err := repo.ListChecks(ctx, "1", time.Time{})
		require.NoError(t, err)
		assert.Len(t, rest, 1)
	})
}
