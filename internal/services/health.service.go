package services

import "context"

type HealthRepository interface {
	Count(ctx context.Context) (int64, error)
}

// HealthService reports liveness of the storage dependency.
type HealthService struct {
	repository HealthRepository
}

func NewHealthService(repository HealthRepository) *HealthService {
	return &HealthService{repository: repository}
}

func (s *HealthService) Get(ctx context.Context) error {
	_, err := s.repository.Count(ctx)
	return err
}
