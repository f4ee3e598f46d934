package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stayware/message-etl/internal/config"
	gateway "github.com/stayware/message-etl/internal/gateways"
	"github.com/stayware/message-etl/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Connect(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *MockStore) Upsert(ctx context.Context, msg *model.Message) bool {
	return m.Called(ctx, msg).Bool(0)
}

func (m *MockStore) LatestTimestamp(ctx context.Context) *time.Time {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*time.Time)
}

func (m *MockStore) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) Disconnect() {
	m.Called()
}

type MockTransformer struct {
	mock.Mock
}

func (m *MockTransformer) Transform(ctx context.Context, raw *gateway.RawConversation) (*model.Message, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyFailure(subject, body string) {
	m.Called(subject, body)
}

// stubCursor replays a fixed record stream, optionally ending with an
// error instead of end-of-stream.
type stubCursor struct {
	records []*gateway.RawConversation
	err     error
	pos     int
}

func (c *stubCursor) Next(ctx context.Context) (*gateway.RawConversation, error) {
	if c.pos >= len(c.records) {
		if c.err != nil {
			return nil, c.err
		}
		return nil, nil
	}
	raw := c.records[c.pos]
	c.pos++
	return raw, nil
}

func (c *stubCursor) LastOffset() int { return c.pos }

type stubGateway struct {
	cursor    *stubCursor
	gotSince  *time.Time
	wasCalled bool
}

func (g *stubGateway) Messages(since *time.Time) RecordCursor {
	g.wasCalled = true
	g.gotSince = since
	return g.cursor
}

func validConfig() *config.Config {
	return &config.Config{
		HostawayClientID:     "client",
		HostawayClientSecret: "secret",
		PostgresHost:         "localhost",
		PostgresDatabase:     "messages",
	}
}

func rawRecord(id int64) *gateway.RawConversation {
	return &gateway.RawConversation{ID: id}
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("clean run stores every record", func(t *testing.T) {
		store := new(MockStore)
		transformer := new(MockTransformer)
		notifier := new(MockNotifier)
		gw := &stubGateway{cursor: &stubCursor{
			records: []*gateway.RawConversation{rawRecord(1), rawRecord(2), rawRecord(3)},
		}}

		store.On("Connect", ctx).Return(true)
		store.On("LatestTimestamp", ctx).Return(nil)
		store.On("Disconnect").Return()
		transformer.On("Transform", ctx, mock.Anything).Return(&model.Message{MessageID: "m"}, nil)
		store.On("Upsert", ctx, mock.Anything).Return(true)

		report := New(validConfig(), gw, store, transformer, notifier).Run(ctx, nil)

		assert.True(t, report.Success)
		assert.Equal(t, 3, report.Processed)
		assert.Zero(t, report.Errors)
		assert.NoError(t, report.Err)
		store.AssertCalled(t, "Disconnect")
		notifier.AssertNotCalled(t, "NotifyFailure", mock.Anything, mock.Anything)
	})

	t.Run("one bad record makes the run partial but keeps going", func(t *testing.T) {
		store := new(MockStore)
		transformer := new(MockTransformer)
		notifier := new(MockNotifier)
		bad := rawRecord(2)
		gw := &stubGateway{cursor: &stubCursor{
			records: []*gateway.RawConversation{rawRecord(1), bad, rawRecord(3)},
		}}

		store.On("Connect", ctx).Return(true)
		store.On("LatestTimestamp", ctx).Return(nil)
		store.On("Disconnect").Return()
		transformer.On("Transform", ctx, bad).Return(nil, &model.ValidationError{Field: "direction"})
		transformer.On("Transform", ctx, mock.Anything).Return(&model.Message{MessageID: "m"}, nil)
		store.On("Upsert", ctx, mock.Anything).Return(true)
		notifier.On("NotifyFailure", "Hostaway Message ETL Completed with Errors", mock.Anything).Return()

		report := New(validConfig(), gw, store, transformer, notifier).Run(ctx, nil)

		assert.False(t, report.Success)
		assert.Equal(t, 2, report.Processed)
		assert.Equal(t, 1, report.Errors)
		notifier.AssertExpectations(t)
	})

	t.Run("failed store write counts as a record error", func(t *testing.T) {
		store := new(MockStore)
		transformer := new(MockTransformer)
		notifier := new(MockNotifier)
		gw := &stubGateway{cursor: &stubCursor{
			records: []*gateway.RawConversation{rawRecord(1)},
		}}

		store.On("Connect", ctx).Return(true)
		store.On("LatestTimestamp", ctx).Return(nil)
		store.On("Disconnect").Return()
		transformer.On("Transform", ctx, mock.Anything).Return(&model.Message{MessageID: "m"}, nil)
		store.On("Upsert", ctx, mock.Anything).Return(false)
		notifier.On("NotifyFailure", mock.Anything, mock.Anything).Return()

		report := New(validConfig(), gw, store, transformer, notifier).Run(ctx, nil)

		assert.False(t, report.Success)
		assert.Zero(t, report.Processed)
		assert.Equal(t, 1, report.Errors)
	})

	t.Run("unreachable store aborts before extraction", func(t *testing.T) {
		store := new(MockStore)
		transformer := new(MockTransformer)
		notifier := new(MockNotifier)
		gw := &stubGateway{cursor: &stubCursor{}}

		store.On("Connect", ctx).Return(false)
		store.On("Disconnect").Return()
		notifier.On("NotifyFailure", "Hostaway Message ETL Failed", mock.Anything).Return().Once()

		report := New(validConfig(), gw, store, transformer, notifier).Run(ctx, nil)

		assert.False(t, report.Success)
		assert.ErrorIs(t, report.Err, ErrStoreConnect)
		assert.False(t, gw.wasCalled)
		store.AssertCalled(t, "Disconnect")
		notifier.AssertExpectations(t)
	})

	t.Run("incomplete config aborts before anything runs", func(t *testing.T) {
		store := new(MockStore)
		transformer := new(MockTransformer)
		notifier := new(MockNotifier)
		gw := &stubGateway{cursor: &stubCursor{}}

		notifier.On("NotifyFailure", "Hostaway Message ETL Failed", mock.Anything).Return()

		report := New(&config.Config{}, gw, store, transformer, notifier).Run(ctx, nil)

		assert.False(t, report.Success)
		var missing *config.MissingVarsError
		require.ErrorAs(t, report.Err, &missing)
		store.AssertNotCalled(t, "Connect", mock.Anything)
		assert.False(t, gw.wasCalled)
	})

	t.Run("explicit cutoff skips the stored timestamp", func(t *testing.T) {
		store := new(MockStore)
		transformer := new(MockTransformer)
		notifier := new(MockNotifier)
		gw := &stubGateway{cursor: &stubCursor{}}

		store.On("Connect", ctx).Return(true)
		store.On("Disconnect").Return()

		since := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
		report := New(validConfig(), gw, store, transformer, notifier).Run(ctx, &since)

		assert.True(t, report.Success)
		require.NotNil(t, gw.gotSince)
		assert.True(t, gw.gotSince.Equal(since))
		store.AssertNotCalled(t, "LatestTimestamp", mock.Anything)
	})

	t.Run("nil cutoff resumes from the stored timestamp", func(t *testing.T) {
		store := new(MockStore)
		transformer := new(MockTransformer)
		notifier := new(MockNotifier)
		gw := &stubGateway{cursor: &stubCursor{}}

		latest := time.Date(2026, 8, 20, 16, 30, 0, 0, time.UTC)
		store.On("Connect", ctx).Return(true)
		store.On("LatestTimestamp", ctx).Return(&latest)
		store.On("Disconnect").Return()

		report := New(validConfig(), gw, store, transformer, notifier).Run(ctx, nil)

		assert.True(t, report.Success)
		require.NotNil(t, gw.gotSince)
		assert.True(t, gw.gotSince.Equal(latest))
	})

	t.Run("extraction failure ends the run", func(t *testing.T) {
		store := new(MockStore)
		transformer := new(MockTransformer)
		notifier := new(MockNotifier)
		boom := errors.New("upstream exploded")
		gw := &stubGateway{cursor: &stubCursor{
			records: []*gateway.RawConversation{rawRecord(1)},
			err:     boom,
		}}

		store.On("Connect", ctx).Return(true)
		store.On("LatestTimestamp", ctx).Return(nil)
		store.On("Disconnect").Return()
		transformer.On("Transform", ctx, mock.Anything).Return(&model.Message{MessageID: "m"}, nil)
		store.On("Upsert", ctx, mock.Anything).Return(true)
		notifier.On("NotifyFailure", "Hostaway Message ETL Failed", mock.Anything).Return().Once()

		report := New(validConfig(), gw, store, transformer, notifier).Run(ctx, nil)

		assert.False(t, report.Success)
		assert.ErrorIs(t, report.Err, boom)
		assert.Equal(t, 1, report.Processed)
		notifier.AssertExpectations(t)
	})

	t.Run("panic is recovered into a failed report", func(t *testing.T) {
		store := new(MockStore)
		transformer := new(MockTransformer)
		notifier := new(MockNotifier)
		gw := &stubGateway{cursor: &stubCursor{
			records: []*gateway.RawConversation{rawRecord(1)},
		}}

		store.On("Connect", ctx).Return(true)
		store.On("LatestTimestamp", ctx).Return(nil)
		store.On("Disconnect").Return()
		transformer.On("Transform", ctx, mock.Anything).Run(func(args mock.Arguments) {
			panic("boom")
		}).Return(nil, nil)
		notifier.On("NotifyFailure", "Hostaway Message ETL Failed", mock.Anything).Return().Once()

		report := New(validConfig(), gw, store, transformer, notifier).Run(ctx, nil)

		assert.False(t, report.Success)
		require.Error(t, report.Err)
		assert.Contains(t, report.Err.Error(), "panicked")
		store.AssertCalled(t, "Disconnect")
		notifier.AssertExpectations(t)
	})
}
