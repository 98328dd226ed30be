package registry

/*
Файл service.go реализует AdminSurfaceRegistry — единственный путь мутации
конфигурации админ-поверхностей. Горячий путь проксирования читает из
потокобезопасного кэша в памяти; инстансы шлюза синхронизируются сигналом
инвалидации через Redis Pub/Sub.
*/

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/xela07ax/tenant-admin-gateway/internal/domain"
	"github.com/xela07ax/tenant-admin-gateway/internal/infra"
	"github.com/xela07ax/tenant-admin-gateway/internal/vault"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const minAdminKeyLen = 16

// Ошибки валидации Configure — наверху это всегда 400.
var (
	ErrInvalidBaseURL = errors.New("registry: base_url must be an absolute http(s) URL without user-info")
	ErrWeakAdminKey   = fmt.Errorf("registry: admin_key must be at least %d characters", minAdminKeyLen)
)

// Store описывает требования сервиса к хранилищу конфигураций.
type Store interface {
	GetSurface(ctx context.Context, appID string) (*domain.AdminSurfaceConfig, error)
	UpsertSurface(ctx context.Context, cfg *domain.AdminSurfaceConfig) error
}

type Service struct {
	store  Store
	vault  vault.Vault
	rdb    *redis.Client
	logger *zap.Logger

	// Кэш: appID -> конфигурация. Только положительные записи;
	// инвалидация — по сигналу из Redis.
	mu    sync.RWMutex
	cache map[string]*domain.AdminSurfaceConfig
}

func NewService(store Store, v vault.Vault, rdb *redis.Client, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		vault:  v,
		rdb:    rdb,
		logger: logger.Named("registry"),
		cache:  make(map[string]*domain.AdminSurfaceConfig),
	}
}

// Configure создает либо перезаписывает конфигурацию поверхности.
// Ключ версионируется строго +1; lastRotatedAt ставится здесь.
// Конфигурации никогда не удаляются — только замещаются.
func (s *Service) Configure(ctx context.Context, appID, baseURL, adminKey, notes, actorUserID string) (*domain.AdminSurfaceConfig, error) {
	normalized, err := validateBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if len(adminKey) < minAdminKeyLen {
		return nil, ErrWeakAdminKey
	}

	// 1. Версия ключа: предыдущая +1, либо 1 при первой настройке
	version := 1
	if existing, err := s.store.GetSurface(ctx, appID); err != nil {
		return nil, fmt.Errorf("registry: load existing config: %w", err)
	} else if existing != nil {
		version = existing.KeyVersion + 1
	}

	// 2. Шифруем ключ — открытый текст дальше этой строки не живет
	encrypted, err := s.vault.Protect([]byte(adminKey))
	if err != nil {
		return nil, fmt.Errorf("registry: protect admin key: %w", err)
	}

	now := time.Now().UTC()
	cfg := &domain.AdminSurfaceConfig{
		AppID:             appID,
		BaseURL:           normalized,
		AdminKeyEncrypted: encrypted,
		KeyVersion:        version,
		LastRotatedAt:     now,
		Notes:             notes,
		UpdatedByUserID:   actorUserID,
		UpdatedAt:         now,
	}

	if err := s.store.UpsertSurface(ctx, cfg); err != nil {
		return nil, fmt.Errorf("registry: persist config: %w", err)
	}

	// 3. Обновляем локальный кэш и сигналим остальным инстансам
	s.mu.Lock()
	s.cache[appID] = cfg
	s.mu.Unlock()

	s.notifyUpdate(ctx, appID)

	s.logger.Info("admin surface configured",
		zap.String("app_id", appID),
		zap.Int("key_version", version),
		zap.String("actor_user_id", actorUserID))

	return cfg, nil
}

// GetStatus — безопасная проекция для API. Ключ не возвращается никогда.
func (s *Service) GetStatus(ctx context.Context, appID string) (*domain.SurfaceStatus, error) {
	cfg, err := s.GetForProxy(ctx, appID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return &domain.SurfaceStatus{AppID: appID, Configured: false}, nil
	}
	updatedAt := cfg.UpdatedAt
	return &domain.SurfaceStatus{
		AppID:      appID,
		Configured: true,
		BaseURL:    cfg.BaseURL,
		UpdatedAt:  &updatedAt,
	}, nil
}

// GetForProxy — внутренний путь для шлюза: сперва кэш, потом Postgres.
// (nil, nil) означает "не сконфигурировано".
func (s *Service) GetForProxy(ctx context.Context, appID string) (*domain.AdminSurfaceConfig, error) {
	s.mu.RLock()
	cfg, ok := s.cache[appID]
	s.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	cfg, err := s.store.GetSurface(ctx, appID)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		s.mu.Lock()
		s.cache[appID] = cfg
		s.mu.Unlock()
	}
	return cfg, nil
}

// notifyUpdate шлет широковещательный сигнал; его недоставка не фатальна —
// чужой кэш отстанет максимум до своего переподключения.
func (s *Service) notifyUpdate(ctx context.Context, appID string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Publish(ctx, infra.RedisChanSurfaceUpdate, appID).Err(); err != nil {
		s.logger.Warn("surface update signal delivery failed",
			zap.String("app_id", appID), zap.Error(err))
	}
}

// evict выбрасывает запись из кэша (вызывается слушателем сигналов).
func (s *Service) evict(appID string) {
	s.mu.Lock()
	delete(s.cache, appID)
	s.mu.Unlock()
}

// flushCache сбрасывает кэш целиком (после переподключения к Redis могли
// быть пропущены сигналы).
func (s *Service) flushCache() {
	s.mu.Lock()
	s.cache = make(map[string]*domain.AdminSurfaceConfig)
	s.mu.Unlock()
}

// validateBaseURL: абсолютный http(s), без user-info, без завершающего слэша.
func validateBaseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return "", ErrInvalidBaseURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidBaseURL
	}
	if u.User != nil {
		return "", ErrInvalidBaseURL
	}
	if u.Host == "" {
		return "", ErrInvalidBaseURL
	}
	return strings.TrimRight(raw, "/"), nil
}
