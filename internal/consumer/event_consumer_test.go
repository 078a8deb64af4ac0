package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vhvplatform/go-attendance-service/internal/shared/errors"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
	"github.com/vhvplatform/go-attendance-service/internal/shared/rabbitmq"
)

type fakeScheduler struct {
	mu          sync.Mutex
	scheduled   []string
	unscheduled []string
	err         error
}

func (f *fakeScheduler) ScheduleUser(_ context.Context, userID string, announce bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, userID)
	return f.err
}

func (f *fakeScheduler) UnscheduleUser(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unscheduled = append(f.unscheduled, userID)
	return true
}

type fakeInvalidator struct {
	users []string
}

func (f *fakeInvalidator) Invalidate(userID string) {
	f.users = append(f.users, userID)
}

type fakeBroker struct {
	mu           sync.Mutex
	declared     []string
	consumes     int
	channels     []chan rabbitmq.Message
	err          error
	closed       bool
	reconnects   int
	reconnectErr error
}

func (b *fakeBroker) DeclareExchange(name, kind string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.declared = append(b.declared, "exchange:"+name+":"+kind)
	return b.err
}

func (b *fakeBroker) DeclareQueue(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.declared = append(b.declared, "queue:"+name)
	return nil
}

func (b *fakeBroker) BindQueue(queue, routingKey, exchange string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.declared = append(b.declared, "bind:"+queue+":"+routingKey+":"+exchange)
	return nil
}

func (b *fakeBroker) SetPrefetch(int) error { return nil }

func (b *fakeBroker) Consume(string, string) (<-chan rabbitmq.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumes++
	ch := make(chan rabbitmq.Message)
	b.channels = append(b.channels, ch)
	return ch, nil
}

func (b *fakeBroker) Cancel(string) error { return nil }

func (b *fakeBroker) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *fakeBroker) Reconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reconnects++
	if b.reconnectErr != nil {
		return b.reconnectErr
	}
	b.closed = false
	return nil
}

func (b *fakeBroker) setClosed(closed bool, reconnectErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = closed
	b.reconnectErr = reconnectErr
}

func (b *fakeBroker) reconnectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reconnects
}

func (b *fakeBroker) declaredCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.declared)
}

func (b *fakeBroker) consumeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consumes
}

func (b *fakeBroker) channel(i int) chan rabbitmq.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[i]
}

func TestProcess(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		schedErr      error
		wantScheduled []string
		wantRemoved   []string
		wantErr       bool
		wantPermanent bool
	}{
		{
			name:          "updated reschedules",
			body:          `{"type":"settings.updated","user_id":"u1"}`,
			wantScheduled: []string{"u1"},
		},
		{
			name:        "deleted unschedules",
			body:        `{"type":"settings.deleted","user_id":"u2"}`,
			wantRemoved: []string{"u2"},
		},
		{
			name:          "invalid json",
			body:          `{not json`,
			wantErr:       true,
			wantPermanent: true,
		},
		{
			name:          "missing user",
			body:          `{"type":"settings.updated"}`,
			wantErr:       true,
			wantPermanent: true,
		},
		{
			name:          "unknown type",
			body:          `{"type":"settings.renamed","user_id":"u1"}`,
			wantErr:       true,
			wantPermanent: true,
		},
		{
			name:          "store failure is retryable",
			body:          `{"type":"settings.updated","user_id":"u1"}`,
			schedErr:      errors.New("db down"),
			wantScheduled: []string{"u1"},
			wantErr:       true,
		},
		{
			name:          "invalid profile is permanent",
			body:          `{"type":"settings.updated","user_id":"u1"}`,
			schedErr:      apperrors.NewValidationError("invalid work start time", nil),
			wantScheduled: []string{"u1"},
			wantErr:       true,
			wantPermanent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &fakeScheduler{err: tt.schedErr}
			c := NewEventConsumer(&fakeBroker{}, sched, nil, logger.NewNop())

			err := c.Process(context.Background(), []byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantPermanent, isPermanent(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantScheduled, sched.scheduled)
			assert.Equal(t, tt.wantRemoved, sched.unscheduled)
		})
	}
}

func TestProcessInvalidatesCalendarCache(t *testing.T) {
	invalidator := &fakeInvalidator{}
	c := NewEventConsumer(&fakeBroker{}, &fakeScheduler{}, invalidator, logger.NewNop())

	require.NoError(t, c.Process(context.Background(), []byte(`{"type":"settings.updated","user_id":"u1"}`)))
	assert.Equal(t, []string{"u1"}, invalidator.users)
}

func TestSetup(t *testing.T) {
	broker := &fakeBroker{}
	c := NewEventConsumer(broker, &fakeScheduler{}, nil, logger.NewNop())

	require.NoError(t, c.Setup())
	assert.Equal(t, []string{
		"exchange:attendance:topic",
		"queue:attendance_settings_queue",
		"bind:attendance_settings_queue:settings.*:attendance",
	}, broker.declared)

	broker.err = errors.New("channel closed")
	assert.Error(t, c.Setup())
}

func TestRunRestartsAfterChannelClose(t *testing.T) {
	broker := &fakeBroker{}
	c := NewEventConsumer(broker, &fakeScheduler{}, nil, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return broker.consumeCount() == 1 }, time.Second, 5*time.Millisecond)
	close(broker.channel(0))
	require.Eventually(t, func() bool { return broker.consumeCount() == 2 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestRunRedialsAfterConnectionLoss(t *testing.T) {
	broker := &fakeBroker{}
	c := NewEventConsumer(broker, &fakeScheduler{}, nil, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return broker.consumeCount() == 1 }, time.Second, 5*time.Millisecond)

	// First redial fails, the next one succeeds after backoff.
	broker.setClosed(true, errors.New("connection refused"))
	close(broker.channel(0))
	require.Eventually(t, func() bool { return broker.reconnectCount() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, broker.consumeCount())

	broker.setClosed(true, nil)
	require.Eventually(t, func() bool { return broker.consumeCount() == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, broker.reconnectCount())
	assert.Equal(t, 3, broker.declaredCount())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
