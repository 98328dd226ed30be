package domain

import "time"

// AdminSurfaceConfig — конфигурация админ-поверхности одного tenant-приложения.
// Это единственное место, где живет зашифрованный админ-ключ. Открытый текст
// ключа не покидает пакет vault.
type AdminSurfaceConfig struct {
	AppID   string `json:"app_id"`
	BaseURL string `json:"base_url"` // Абсолютный URL без завершающего слэша

	// Никогда не сериализуем и не логируем шифртекст
	AdminKeyEncrypted []byte `json:"-"`

	KeyVersion    int       `json:"key_version"` // Строго +1 при каждой переконфигурации, старт с 1
	LastRotatedAt time.Time `json:"last_rotated_at"`

	Notes           string    `json:"notes,omitempty"`
	UpdatedByUserID string    `json:"updated_by_user_id"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SurfaceStatus — безопасная проекция конфигурации для API (без ключа).
type SurfaceStatus struct {
	AppID      string     `json:"app_id"`
	Configured bool       `json:"configured"`
	BaseURL    string     `json:"base_url,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// ConfigureSurfaceRequest — тело PUT /apps/{appID}/admin-surface.
type ConfigureSurfaceRequest struct {
	BaseURL  string `json:"base_url"`
	AdminKey string `json:"admin_key"`
	Notes    string `json:"notes,omitempty"`
}

// ConfigureSurfaceResponse подтверждает сохранение (ключ не возвращаем).
type ConfigureSurfaceResponse struct {
	OK         bool      `json:"ok"`
	AppID      string    `json:"app_id"`
	BaseURL    string    `json:"base_url"`
	Configured bool      `json:"configured"`
	UpdatedAt  time.Time `json:"updated_at"`
}
