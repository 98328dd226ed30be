package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStorage собирает пачки и умеет имитировать медленный или падающий бэкенд.
type fakeStorage struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
	block   bool
}

func (f *fakeStorage) WriteBatch(ctx context.Context, events []Event) error {
	if f.block {
		// Висим до истечения контекста, как висел бы недоступный Postgres
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]Event, len(events))
	copy(cp, events)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeStorage) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestTrail_WriteIsNonBlocking(t *testing.T) {
	// Воркер намеренно не запущен: имитация наглухо вставшего потребителя
	storage := &fakeStorage{block: true}
	trail := NewTrail(storage, zap.NewNop(), nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			trail.Write(Event{AppID: "app_1", Operation: "settings_update"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write blocked: audit must never slow down the caller")
	}
}

func TestTrail_EventsAreFlushedByTicker(t *testing.T) {
	storage := &fakeStorage{}
	trail := NewTrail(storage, zap.NewNop(), nil)
	trail.Start()

	for i := 0; i < 7; i++ {
		trail.Write(Event{AppID: "app_1", Operation: "action_invoke"})
	}

	// Пачка меньше batchSize — её выталкивает только тикер
	require.Eventually(t, func() bool {
		return storage.total() == 7
	}, 3*time.Second, 50*time.Millisecond)

	trail.Stop()
}

func TestTrail_StopDrainsBuffer(t *testing.T) {
	storage := &fakeStorage{}
	trail := NewTrail(storage, zap.NewNop(), nil)
	trail.Start()

	for i := 0; i < 250; i++ {
		trail.Write(Event{AppID: "app_1", Operation: "user_action"})
	}
	trail.Stop()

	// Drain: после Stop всё из буфера должно оказаться в хранилище
	assert.Equal(t, 250, storage.total())
}

func TestTrail_StorageFailureIsSwallowed(t *testing.T) {
	storage := &fakeStorage{err: errors.New("insert failed")}
	trail := NewTrail(storage, zap.NewNop(), nil)
	trail.Start()

	trail.Write(Event{AppID: "app_1", Operation: "settings_update"})

	// Ни паники, ни блокировки: отказ хранилища — потеря событий, не отказ сервиса
	assert.NotPanics(t, trail.Stop)
}

func TestTrail_WriteAfterStopIsDropped(t *testing.T) {
	storage := &fakeStorage{}
	trail := NewTrail(storage, zap.NewNop(), nil)
	trail.Start()
	trail.Stop()

	// Канал уже закрыт — Write обязан молча отбросить событие, а не паниковать
	assert.NotPanics(t, func() {
		trail.Write(Event{AppID: "app_1", Operation: "settings_update"})
	})
	assert.Equal(t, 0, storage.total())
}

func TestTrail_TimestampDefaulted(t *testing.T) {
	storage := &fakeStorage{}
	trail := NewTrail(storage, zap.NewNop(), nil)
	trail.Start()

	trail.Write(Event{AppID: "app_1", Operation: "settings_update"})
	trail.Stop()

	require.Equal(t, 1, storage.total())
	assert.False(t, storage.batches[0][0].Timestamp.IsZero())
}
