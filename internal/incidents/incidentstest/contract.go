// Package incidentstest holds behaviour tests shared by every incidents.Repository implementation.
package incidentstest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opslink/statuswatch/internal/domain"
	"github.com/opslink/statuswatch/internal/incidents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RepositoryFactory returns an empty repository for one subtest.
type RepositoryFactory func(t *testing.T) incidents.Repository

var base = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

func newIncident(serviceID string, start time.Time) (*domain.Incident, *domain.IncidentUpdate) {
	return &domain.Incident{
			ServiceID: serviceID,
			Title:     serviceID + " is down",
			Reason:    "Server is offline",
			Severity:  domain.SeverityCritical,
			StartTime: start,
		}, &domain.IncidentUpdate{
			Message:   incidents.MessageWentOffline,
			Timestamp: start,
		}
}

// RunRepositoryTests exercises an incidents.Repository implementation.
func RunRepositoryTests(t *testing.T, newRepo RepositoryFactory) {
	t.Run("create stores incident and first update", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		incident, update := newIncident("1", base)
		require.NoError(t, repo.CreateIncident(ctx, incident, update))
		require.NotEmpty(t, incident.ID)
		assert.Equal(t, incident.ID, update.IncidentID)
		assert.NotEmpty(t, update.ID)

		got, err := repo.GetIncident(ctx, incident.ID)
		require.NoError(t, err)
		assert.Equal(t, "1 is down", got.Title)
		assert.Equal(t, domain.SeverityCritical, got.Severity)
		assert.True(t, base.Equal(got.StartTime))
		assert.Nil(t, got.EndTime)

		updates, err := repo.ListIncidentUpdates(ctx, incident.ID)
		require.NoError(t, err)
		require.Len(t, updates, 1)
		assert.Equal(t, incidents.MessageWentOffline, updates[0].Message)
	})

	t.Run("second open incident for a service is rejected", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		first, u1 := newIncident("1", base)
		require.NoError(t, repo.CreateIncident(ctx, first, u1))

		second, u2 := newIncident("1", base.Add(time.Minute))
		err := repo.CreateIncident(ctx, second, u2)
		assert.ErrorIs(t, err, incidents.ErrIncidentAlreadyOpen)

		other, u3 := newIncident("2", base)
		assert.NoError(t, repo.CreateIncident(ctx, other, u3))

		open, err := repo.ListIncidents(ctx, incidents.IncidentFilter{ServiceID: "1", OpenOnly: true})
		require.NoError(t, err)
		assert.Len(t, open, 1)
	})

	t.Run("concurrent creates leave one open incident", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				incident, update := newIncident("race", base)
				_ = repo.CreateIncident(ctx, incident, update)
			}()
		}
		wg.Wait()

		open, err := repo.ListIncidents(ctx, incidents.IncidentFilter{ServiceID: "race", OpenOnly: true})
		require.NoError(t, err)
		assert.Len(t, open, 1)
	})

	t.Run("not found", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.GetIncident(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, incidents.ErrIncidentNotFound)

		_, err = repo.GetIncident(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, incidents.ErrIncidentNotFound)

		_, err = repo.GetOpenIncident(ctx, "1")
		assert.ErrorIs(t, err, incidents.ErrIncidentNotFound)
	})

	t.Run("resolve is conditional", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		incident, update := newIncident("1", base)
		require.NoError(t, repo.CreateIncident(ctx, incident, update))

		end := base.Add(10 * time.Minute)
		resolved, err := repo.ResolveIncident(ctx, incident.ID, end,
			&domain.IncidentUpdate{Message: incidents.MessageRestored, Timestamp: end})
		require.NoError(t, err)
		assert.True(t, resolved)

		resolved, err = repo.ResolveIncident(ctx, incident.ID, end.Add(time.Minute),
			&domain.IncidentUpdate{Message: incidents.MessageResolved, Timestamp: end.Add(time.Minute)})
		require.NoError(t, err)
		assert.False(t, resolved)

		got, err := repo.GetIncident(ctx, incident.ID)
		require.NoError(t, err)
		require.NotNil(t, got.EndTime)
		assert.True(t, end.Equal(*got.EndTime))

		updates, err := repo.ListIncidentUpdates(ctx, incident.ID)
		require.NoError(t, err)
		require.Len(t, updates, 2)
		assert.Equal(t, incidents.MessageRestored, updates[1].Message)

		_, err = repo.GetOpenIncident(ctx, "1")
		assert.ErrorIs(t, err, incidents.ErrIncidentNotFound)

		next, u := newIncident("1", end.Add(time.Hour))
		assert.NoError(t, repo.CreateIncident(ctx, next, u), "a resolved incident frees the service")
	})

	t.Run("updates are ordered by timestamp", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		incident, update := newIncident("1", base)
		require.NoError(t, repo.CreateIncident(ctx, incident, update))

		for _, offset := range []time.Duration{3 * time.Minute, time.Minute, 2 * time.Minute} {
			require.NoError(t, repo.CreateIncidentUpdate(ctx, &domain.IncidentUpdate{
				IncidentID: incident.ID,
				Message:    offset.String(),
				Timestamp:  base.Add(offset),
			}))
		}

		updates, err := repo.ListIncidentUpdates(ctx, incident.ID)
		require.NoError(t, err)
		require.Len(t, updates, 4)
		for i := 1; i < len(updates); i++ {
			assert.False(t, updates[i].Timestamp.Before(updates[i-1].Timestamp))
		}
	})

	t.Run("updates with equal timestamps keep insertion order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		incident, update := newIncident("1", base)
		require.NoError(t, repo.CreateIncident(ctx, incident, update))

		messages := []string{incidents.MessageWentOffline, "Host provider paged", "Disk replaced", "Watching"}
		for _, msg := range messages[1:] {
			require.NoError(t, repo.CreateIncidentUpdate(ctx, &domain.IncidentUpdate{
				IncidentID: incident.ID,
				Message:    msg,
				Timestamp:  base,
			}))
		}

		updates, err := repo.ListIncidentUpdates(ctx, incident.ID)
		require.NoError(t, err)
		require.Len(t, updates, len(messages))
		for i, u := range updates {
			assert.Equal(t, messages[i], u.Message)
		}
	})

	t.Run("list filters and orders newest first", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		old, u := newIncident("1", base.Add(-40*24*time.Hour))
		require.NoError(t, repo.CreateIncident(ctx, old, u))
		_, err := repo.ResolveIncident(ctx, old.ID, old.StartTime.Add(time.Hour),
			&domain.IncidentUpdate{Message: incidents.MessageRestored, Timestamp: old.StartTime.Add(time.Hour)})
		require.NoError(t, err)

		recent, u := newIncident("2", base)
		require.NoError(t, repo.CreateIncident(ctx, recent, u))

		newer, u := newIncident("3", base.Add(time.Hour))
		require.NoError(t, repo.CreateIncident(ctx, newer, u))

		all, err := repo.ListIncidents(ctx, incidents.IncidentFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, newer.ID, all[0].ID)
		assert.Equal(t, old.ID, all[2].ID)

		since, err := repo.ListIncidents(ctx, incidents.IncidentFilter{Since: base.Add(-30 * 24 * time.Hour)})
		require.NoError(t, err)
		assert.Len(t, since, 2)

		limited, err := repo.ListIncidents(ctx, incidents.IncidentFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, newer.ID, limited[0].ID)
	})
}
