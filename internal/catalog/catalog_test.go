package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/opslink/statuswatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New([]domain.Service{
		{ID: "1", Name: "Main"},
		{ID: "2", Name: "Backup"},
	})
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		services []domain.Service
		wantErr  string
	}{
		{"empty id", []domain.Service{{ID: " ", Name: "x"}}, "id is required"},
		{"empty name", []domain.Service{{ID: "1", Name: ""}}, "name is required"},
		{"duplicate", []domain.Service{{ID: "1", Name: "a"}, {ID: "1", Name: "b"}}, "duplicate id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.services)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_Empty(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	assert.Empty(t, c.List())
}

func TestCatalog_ListPreservesOrderAndCopies(t *testing.T) {
	c := testCatalog(t)

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].ID)
	assert.Equal(t, "2", list[1].ID)

	list[0].Name = "mutated"
	assert.Equal(t, "Main", c.List()[0].Name)
}

func TestCatalog_Get(t *testing.T) {
	c := testCatalog(t)

	s, err := c.Get("2")
	require.NoError(t, err)
	assert.Equal(t, "Backup", s.Name)

	_, err = c.Get("404")
	assert.ErrorIs(t, err, ErrServiceNotFound)

	assert.True(t, c.Exists("1"))
	assert.False(t, c.Exists("404"))
}

func TestCatalog_GetServiceName(t *testing.T) {
	c := testCatalog(t)

	name, err := c.GetServiceName(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Main", name)

	_, err = c.GetServiceName(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestHandler(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(testCatalog(t)).RegisterRoutes(r)

	t.Run("list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data []domain.Service `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body.Data, 2)
	})

	t.Run("unknown", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services/404", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
