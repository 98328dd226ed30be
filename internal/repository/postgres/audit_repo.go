package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/tenant-admin-gateway/internal/audit"
)

// WriteBatch делает пакетную вставку событий аудита (Bulk Insert).
func (r *Repo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_events
	numFields := 15
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholders := make([]string, numFields)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", p+j+1)
		}
		placeholderStr += "(" + strings.Join(placeholders, ", ") + "),"

		vals = append(vals,
			e.ID, e.AppID, e.ModuleID, e.ActionID, e.Operation,
			e.ActorUserID, e.ActorRole, e.CorrelationID, e.Timestamp,
			e.Success, e.StatusCode, e.Path, e.RequestBytes, e.ResponseBytes,
			e.ErrorMessage,
		)
	}

	query := fmt.Sprintf(
		`INSERT INTO audit_events
			(id, app_id, module_id, action_id, operation,
			 actor_user_id, actor_role, correlation_id, timestamp,
			 success, status_code, path, request_bytes, response_bytes,
			 error_message)
		VALUES %s`,
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

// FetchEvents возвращает события аудита с фильтрацией для Console-эндпоинта.
// Таблица append-only: читаем, но никогда не трогаем.
func (r *Repo) FetchEvents(ctx context.Context, appID, operation string, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, app_id, module_id, action_id, operation,
		       actor_user_id, actor_role, correlation_id, timestamp,
		       success, status_code, path, request_bytes, response_bytes,
		       error_message
		FROM audit_events
		WHERE ($1 = '' OR app_id = $1)
		  AND ($2 = '' OR operation = $2)
		ORDER BY timestamp DESC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, appID, operation, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch audit events: %w", err)
	}
	defer rows.Close()

	var results []audit.Event
	for rows.Next() {
		var e audit.Event
		if err := rows.Scan(
			&e.ID, &e.AppID, &e.ModuleID, &e.ActionID, &e.Operation,
			&e.ActorUserID, &e.ActorRole, &e.CorrelationID, &e.Timestamp,
			&e.Success, &e.StatusCode, &e.Path, &e.RequestBytes, &e.ResponseBytes,
			&e.ErrorMessage,
		); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
