package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// HeaderCorrelationID — сквозной ID запроса для кросс-системной трассировки.
const HeaderCorrelationID = "x-correlation-id"

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const correlationIDKey ctxKey = "correlation_id"

// CorrelationMiddleware инициализирует correlation-id для каждого запроса.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Пытаемся достать ID из заголовка (пришел от вызывающей системы)
		correlationID := r.Header.Get(HeaderCorrelationID)

		// 2. Если его нет — генерируем новый
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		// 3. Кладем в контекст
		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)

		// 4. Эхо в ответ, чтобы клиент знал ID своего запроса
		w.Header().Set(HeaderCorrelationID, correlationID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationIDFrom помогает безопасно достать ID в любом месте кода.
func CorrelationIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return "00000000-0000-0000-0000-000000000000" // Fallback
}
