// Package catalog provides the static catalog of monitored services.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opslink/statuswatch/internal/domain"
)

// ErrServiceNotFound is returned for ids that are not in the catalog.
var ErrServiceNotFound = errors.New("service not found")

// Catalog is an immutable, ordered set of services loaded at startup.
type Catalog struct {
	services []domain.Service
	byID     map[string]domain.Service
}

// New validates services and builds a catalog that preserves their order.
func New(services []domain.Service) (*Catalog, error) {
	c := &Catalog{
		services: make([]domain.Service, 0, len(services)),
		byID:     make(map[string]domain.Service, len(services)),
	}

	for i, s := range services {
		s.ID = strings.TrimSpace(s.ID)
		s.Name = strings.TrimSpace(s.Name)

		if s.ID == "" {
			return nil, fmt.Errorf("service #%d: id is required", i)
		}
		if s.Name == "" {
			return nil, fmt.Errorf("service %s: name is required", s.ID)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("service %s: duplicate id", s.ID)
		}

		c.services = append(c.services, s)
		c.byID[s.ID] = s
	}

	return c, nil
}

// List returns all services in configuration order.
func (c *Catalog) List() []domain.Service {
	out := make([]domain.Service, len(c.services))
	copy(out, c.services)
	return out
}

// Get returns the service with the given id.
func (c *Catalog) Get(id string) (domain.Service, error) {
	s, ok := c.byID[id]
	if !ok {
		return domain.Service{}, ErrServiceNotFound
	}
	return s, nil
}

// Exists reports whether id is in the catalog.
func (c *Catalog) Exists(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// GetServiceName returns the display name of a service.
func (c *Catalog) GetServiceName(_ context.Context, id string) (string, error) {
	s, err := c.Get(id)
	if err != nil {
		return "", fmt.Errorf("get service %s: %w", id, err)
	}
	return s.Name, nil
}
