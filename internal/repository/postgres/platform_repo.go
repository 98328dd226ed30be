package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xela07ax/tenant-admin-gateway/internal/access"
)

// Read-only проекции платформенных таблиц. Владеют ими другие сервисы;
// шлюз только читает то, что нужно для авторизации.

// GetApp возвращает владение и признак удаления. (nil, nil) — приложения нет.
func (r *Repo) GetApp(ctx context.Context, appID string) (*access.App, error) {
	query := `SELECT id, owner_user_id, deleted_at IS NOT NULL FROM apps WHERE id = $1`

	app := &access.App{}
	err := r.db.QueryRowContext(ctx, query, appID).Scan(&app.ID, &app.OwnerUserID, &app.Deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Для резолвера это not-found
		}
		return nil, fmt.Errorf("postgres: get app: %w", err)
	}
	return app, nil
}

// GetMembership — членство вызывающего в команде приложения.
// (nil, nil) — не участник.
func (r *Repo) GetMembership(ctx context.Context, appID, userID string) (*access.Membership, error) {
	query := `
		SELECT tm.role, tm.status = 'active'
		FROM team_members tm
		JOIN apps a ON a.team_id = tm.team_id
		WHERE a.id = $1 AND tm.user_id = $2`

	m := &access.Membership{}
	err := r.db.QueryRowContext(ctx, query, appID, userID).Scan(&m.Role, &m.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get membership: %w", err)
	}
	return m, nil
}
