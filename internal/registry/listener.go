package registry

import (
	"context"
	"time"

	"github.com/xela07ax/tenant-admin-gateway/internal/infra"

	"go.uber.org/zap"
)

// StartListener — "живучая" подписка на сигналы инвалидации конфигураций.
// Обрабатывает переподключения: после каждого успешного коннекта кэш
// сбрасывается целиком, потому что сигналы за время разрыва потеряны.
func (s *Service) StartListener(ctx context.Context) {
	if s.rdb == nil {
		return
	}

	for {
		pubsub := s.rdb.Subscribe(ctx, infra.RedisChanSurfaceUpdate)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			s.logger.Error("failed to subscribe",
				zap.String("chan", infra.RedisChanSurfaceUpdate), zap.Error(err))
			pubsub.Close()

			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

		// Синхронизация при каждом успешном коннекте
		s.flushCache()
		s.logger.Info("surface config listener connected, cache flushed")

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				// Payload — appID изменившейся поверхности
				s.evict(msg.Payload)
				s.logger.Debug("surface config evicted", zap.String("app_id", msg.Payload))
			}
		}

		pubsub.Close()
		time.Sleep(time.Second)
	}
}
