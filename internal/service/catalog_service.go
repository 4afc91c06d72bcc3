package service

import (
	"context"
	"sync"

	"bookpoint/internal/domain"
	"bookpoint/internal/models"

	"github.com/rs/zerolog"
)

// CatalogService serves the public catalog. Active services are cached and
// reloaded by Refresh; staff and extras are read through.
type CatalogService struct {
	repo     domain.Repository
	logger   *zerolog.Logger
	services []models.Service
	loaded   bool
	mu       sync.RWMutex
}

func NewCatalogService(repo domain.Repository, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{repo: repo, logger: logger}
}

func (s *CatalogService) ListServices(ctx context.Context) ([]models.Service, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.services, nil
	}
	s.mu.RUnlock()

	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services, nil
}

func (s *CatalogService) ListStaff(ctx context.Context, serviceID int64) ([]models.StaffMember, error) {
	staff, err := s.repo.ListStaff(ctx, serviceID)
	if err != nil {
		return nil, domain.Storage(err, "list staff")
	}
	return staff, nil
}

func (s *CatalogService) ListExtras(ctx context.Context, serviceID int64) ([]models.Extra, error) {
	if serviceID <= 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, "service_id must be positive")
	}
	extras, err := s.repo.ListExtras(ctx, serviceID)
	if err != nil {
		return nil, domain.Storage(err, "list extras")
	}
	return extras, nil
}

// Refresh reloads the active services.
func (s *CatalogService) Refresh(ctx context.Context) error {
	services, err := s.repo.ListServices(ctx)
	if err != nil {
		return domain.Storage(err, "list services")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = services
	s.loaded = true
	s.logger.Debug().Int("count", len(services)).Msg("service catalog refreshed")
	return nil
}
