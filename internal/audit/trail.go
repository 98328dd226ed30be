package audit

/*
Файл trail.go реализует AuditTrailWriter — неблокирующую запись аудита
мутирующих админ-действий.

Ключевые особенности архитектуры:
- Non-blocking Write: события уходят в буферизованный канал; задержки
  хранилища аудита никогда не тормозят ответ оператору. Аудит — это
  observability, а не транзакционный замок.
- Batching: накопление в памяти и пакетная вставка в PostgreSQL по таймеру
  или при достижении лимита пачки.
- Load Shedding: при переполненном буфере событие сбрасывается с warn-логом.
  Потерять строку аудита допустимо; заблокировать админ-действие — нет.
- Drain Pattern: при остановке канал запирается, воркер вычитывает остатки
  и делает финальный flush.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Storage определяет, куда физически сохраняются события.
type Storage interface {
	// WriteBatch сохраняет пачку событий за один запрос
	WriteBatch(ctx context.Context, events []Event) error
}

// Writer — интерфейс для обработчиков: им достаточно Write.
type Writer interface {
	Write(event Event)
}

const (
	bufferSize    = 10000
	batchSize     = 100
	flushInterval = 500 * time.Millisecond
	// Flush работает на собственном коротком таймауте и без ретраев
	flushTimeout = 3 * time.Second
)

type Trail struct {
	ch     chan Event
	repo   Storage
	logger *zap.Logger
	wg     sync.WaitGroup

	// Датчик заполненности буфера (может быть nil)
	fill prometheus.Gauge

	// Атомарный флаг (0 - открыт, 1 - закрыт): защита от Write после Stop
	isClosed int32
}

func NewTrail(repo Storage, logger *zap.Logger, fill prometheus.Gauge) *Trail {
	return &Trail{
		ch:     make(chan Event, bufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "audit-trail")),
		fill:   fill,
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop запирает вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	atomic.StoreInt32(&t.isClosed, 1)

	// Крошечная пауза, чтобы уже начатые Write успели проскочить
	time.Sleep(10 * time.Millisecond)

	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

// Write ставит событие в очередь и немедленно возвращается.
func (t *Trail) Write(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	select {
	case t.ch <- event:
		if t.fill != nil {
			t.fill.Set(float64(len(t.ch)))
		}
	default:
		// Буфер переполнен (Backpressure) — сбрасываем, но фиксируем контекст
		t.logger.Warn("audit_buffer_overflow: event dropped",
			zap.String("app_id", event.AppID),
			zap.String("module_id", event.ModuleID),
			zap.String("action_id", event.ActionID),
			zap.String("operation", event.Operation),
			zap.String("correlation_id", event.CorrelationID))
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Event, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст сервиса к этому моменту может быть закрыт
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if err := t.repo.WriteBatch(ctx, batch); err != nil {
			// Отказ записи аудита глотаем: он не должен эскалировать
			t.logger.Warn("audit flush failed, batch dropped",
				zap.Int("events", len(batch)), zap.Error(err))
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитали остатки — финальный flush и выход
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
			if t.fill != nil {
				t.fill.Set(float64(len(t.ch)))
			}
		}
	}
}
