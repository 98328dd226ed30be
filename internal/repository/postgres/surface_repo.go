package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xela07ax/tenant-admin-gateway/internal/domain"
)

// GetSurface возвращает конфигурацию поверхности либо (nil, nil), если
// приложение еще не настраивали.
func (r *Repo) GetSurface(ctx context.Context, appID string) (*domain.AdminSurfaceConfig, error) {
	query := `
		SELECT app_id, base_url, admin_key_encrypted, key_version,
		       last_rotated_at, notes, updated_by_user_id, updated_at
		FROM admin_surfaces
		WHERE app_id = $1`

	cfg := &domain.AdminSurfaceConfig{}
	err := r.db.QueryRowContext(ctx, query, appID).Scan(
		&cfg.AppID,
		&cfg.BaseURL,
		&cfg.AdminKeyEncrypted,
		&cfg.KeyVersion,
		&cfg.LastRotatedAt,
		&cfg.Notes,
		&cfg.UpdatedByUserID,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Не сконфигурировано — не ошибка
		}
		return nil, fmt.Errorf("postgres: get surface: %w", err)
	}
	return cfg, nil
}

// UpsertSurface создает либо замещает конфигурацию. Строки никогда не
// удаляются — только перезаписываются новой версией ключа.
func (r *Repo) UpsertSurface(ctx context.Context, cfg *domain.AdminSurfaceConfig) error {
	query := `
		INSERT INTO admin_surfaces
			(app_id, base_url, admin_key_encrypted, key_version,
			 last_rotated_at, notes, updated_by_user_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (app_id) DO UPDATE SET
			base_url = EXCLUDED.base_url,
			admin_key_encrypted = EXCLUDED.admin_key_encrypted,
			key_version = EXCLUDED.key_version,
			last_rotated_at = EXCLUDED.last_rotated_at,
			notes = EXCLUDED.notes,
			updated_by_user_id = EXCLUDED.updated_by_user_id,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		cfg.AppID, cfg.BaseURL, cfg.AdminKeyEncrypted, cfg.KeyVersion,
		cfg.LastRotatedAt, cfg.Notes, cfg.UpdatedByUserID, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert surface: %w", err)
	}
	return nil
}
