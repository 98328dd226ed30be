package audit

import "time"

// Event — одна запись аудита. Создается ровно один раз на мутирующий
// проксированный вызов, после того как известен итог апстрима.
// Append-only: этот сервис записи никогда не обновляет и не удаляет.
type Event struct {
	ID            string `json:"id"`     // UUID события
	AppID         string `json:"app_id"` // Целевое приложение
	ModuleID      string `json:"module_id,omitempty"`
	ActionID      string `json:"action_id,omitempty"`
	Operation     string `json:"operation"` // settings_update, action_invoke, user_action
	ActorUserID   string `json:"actor_user_id"`
	ActorRole     string `json:"actor_role"` // Роль, разрешившая операцию
	CorrelationID string `json:"correlation_id"`

	Timestamp     time.Time `json:"timestamp"`
	Success       bool      `json:"success"`
	StatusCode    int       `json:"status_code"`
	Path          string    `json:"path"`
	RequestBytes  int       `json:"request_bytes"`
	ResponseBytes int       `json:"response_bytes"`
	ErrorMessage  string    `json:"error_message,omitempty"`
}
