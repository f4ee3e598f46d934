package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stayware/message-etl/internal/model"
	"github.com/stayware/message-etl/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Message), args.Get(1).(int64), args.Error(2)
}

func (m *MockMessageRepository) GetByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockMessageRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func TestMessageService_List(t *testing.T) {
	ctx := context.Background()

	t.Run("applies default limit", func(t *testing.T) {
		repo := new(MockMessageRepository)
		repo.On("List", ctx, model.MessageFilter{Skip: 0, Limit: 10}).
			Return([]*model.Message{}, int64(0), nil)

		svc := NewMessageService(repo)
		_, _, err := svc.List(ctx, model.MessageFilter{})
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("caps oversized limit and clamps negative skip", func(t *testing.T) {
		repo := new(MockMessageRepository)
		repo.On("List", ctx, model.MessageFilter{Skip: 0, Limit: 100}).
			Return([]*model.Message{}, int64(0), nil)

		svc := NewMessageService(repo)
		_, _, err := svc.List(ctx, model.MessageFilter{Skip: -5, Limit: 5000})
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("passes results through", func(t *testing.T) {
		repo := new(MockMessageRepository)
		msgs := []*model.Message{{MessageID: "m-1"}}
		repo.On("List", ctx, mock.Anything).Return(msgs, int64(7), nil)

		svc := NewMessageService(repo)
		items, total, err := svc.List(ctx, model.MessageFilter{Limit: 20})
		require.NoError(t, err)
		assert.Equal(t, int64(7), total)
		assert.Equal(t, msgs, items)
	})
}

func TestMessageService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		repo := new(MockMessageRepository)
		repo.On("GetByMessageID", ctx, "m-1").Return(&model.Message{MessageID: "m-1"}, nil)

		svc := NewMessageService(repo)
		msg, err := svc.Get(ctx, "m-1")
		require.NoError(t, err)
		assert.Equal(t, "m-1", msg.MessageID)
	})

	t.Run("maps repository not-found to service error", func(t *testing.T) {
		repo := new(MockMessageRepository)
		repo.On("GetByMessageID", ctx, "nope").Return(nil, repository.ErrNotFound)

		svc := NewMessageService(repo)
		_, err := svc.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		repo := new(MockMessageRepository)
		boom := errors.New("boom")
		repo.On("GetByMessageID", ctx, "m-1").Return(nil, boom)

		svc := NewMessageService(repo)
		_, err := svc.Get(ctx, "m-1")
		assert.ErrorIs(t, err, boom)
	})
}

func TestHealthService(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy store", func(t *testing.T) {
		repo := new(MockMessageRepository)
		repo.On("Count", ctx).Return(int64(3), nil)
		assert.NoError(t, NewHealthService(repo).Get(ctx))
	})

	t.Run("unreachable store", func(t *testing.T) {
		repo := new(MockMessageRepository)
		repo.On("Count", ctx).Return(int64(0), errors.New("down"))
		assert.Error(t, NewHealthService(repo).Get(ctx))
	})
}
