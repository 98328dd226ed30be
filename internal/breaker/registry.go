package breaker

/*
Файл registry.go реализует партиционированный Circuit Breaker: по одному
предохранителю на каждое tenant-приложение. Нестабильность одного tenant
никогда не душит трафик к остальным — между приложениями нет общего
состояния и нет глобального лока на горячем пути.
*/

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config — пороги срабатывания. Значения приходят из viper-конфига.
type Config struct {
	FailureThreshold uint32        // Столько последовательных отказов открывают предохранитель
	Cooldown         time.Duration // Пауза перед единственной пробой (Half-Open)
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Snapshot — состояние предохранителя для observability-эндпоинта.
type Snapshot struct {
	AppID               string `json:"app_id"`
	State               string `json:"state"` // closed | half-open | open
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

// Registry хранит предохранители по appID и лениво создает их при первом
// обращении. Переходы состояний атомарны — этим занимается gobreaker,
// мы лишь гарантируем один экземпляр на ключ.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*gobreaker.TwoStepCircuitBreaker
	logger   *zap.Logger

	// Хук для метрик (0=closed, 1=half-open, 2=open)
	onStateChange func(appID string, state gobreaker.State)
}

func NewRegistry(cfg Config, logger *zap.Logger, onStateChange func(appID string, state gobreaker.State)) *Registry {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	return &Registry{
		cfg:           cfg,
		breakers:      make(map[string]*gobreaker.TwoStepCircuitBreaker),
		logger:        logger.Named("breaker"),
		onStateChange: onStateChange,
	}
}

func (r *Registry) get(appID string) *gobreaker.TwoStepCircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[appID]; ok {
		return cb
	}

	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name: appID,
		// Half-Open пропускает ровно одну пробу; второй конкурентный
		// вызов в этот момент получает отказ как при Open
		MaxRequests: 1,
		Timeout:     r.cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Info("breaker state change",
				zap.String("app_id", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if r.onStateChange != nil {
				r.onStateChange(name, to)
			}
		},
	})

	r.breakers[appID] = cb
	return cb
}

// Admit решает, можно ли идти в сеть. Возвращает done-колбэк, которым
// вызывающий фиксирует исход: done(true) — достучались, done(false) — нет.
// ok=false означает немедленный локальный отказ без сетевого вызова.
func (r *Registry) Admit(appID string) (done func(success bool), ok bool) {
	done, err := r.get(appID).Allow()
	if err != nil {
		// ErrOpenState либо ErrTooManyRequests (проба уже в полете) —
		// для вызывающего это одно и то же: CircuitOpen
		return nil, false
	}
	return done, true
}

// Snapshot отдает текущее состояние предохранителя приложения.
func (r *Registry) Snapshot(appID string) Snapshot {
	cb := r.get(appID)
	return Snapshot{
		AppID:               appID,
		State:               cb.State().String(),
		ConsecutiveFailures: cb.Counts().ConsecutiveFailures,
	}
}
