package services

import (
	"context"
	"errors"

	"github.com/stayware/message-etl/internal/model"
	"github.com/stayware/message-etl/internal/repository"
)

// ErrNotFound is returned when a requested message does not exist.
var ErrNotFound = errors.New("message not found")

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

type MessageRepository interface {
	List(ctx context.Context, filter model.MessageFilter) ([]*model.Message, int64, error)
	GetByMessageID(ctx context.Context, messageID string) (*model.Message, error)
	Count(ctx context.Context) (int64, error)
}

// MessageService is the read side over the stored messages. It only
// normalizes paging; all shaping happened at ingest time.
type MessageService struct {
	repository MessageRepository
}

func NewMessageService(repository MessageRepository) *MessageService {
	return &MessageService{repository: repository}
}

func (s *MessageService) List(ctx context.Context, filter model.MessageFilter) ([]*model.Message, int64, error) {
	if filter.Skip < 0 {
		filter.Skip = 0
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return s.repository.List(ctx, filter)
}

func (s *MessageService) Get(ctx context.Context, messageID string) (*model.Message, error) {
	msg, err := s.repository.GetByMessageID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}
