package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/tenant-admin-gateway/internal/breaker"
	"github.com/xela07ax/tenant-admin-gateway/internal/domain"
	"github.com/xela07ax/tenant-admin-gateway/internal/infra/auth"
	"github.com/xela07ax/tenant-admin-gateway/internal/registry"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AccessResolver — решение "кто есть вызывающий для этого приложения".
type AccessResolver interface {
	Resolve(ctx context.Context, appID string, caller domain.Identity) (domain.AccessResult, error)
}

// SurfaceHandler обслуживает конфигурацию админ-поверхностей.
type SurfaceHandler struct {
	registry *registry.Service
	resolver AccessResolver
	breakers *breaker.Registry
	logger   *zap.Logger
}

func NewSurfaceHandler(reg *registry.Service, resolver AccessResolver, breakers *breaker.Registry, logger *zap.Logger) *SurfaceHandler {
	return &SurfaceHandler{
		registry: reg,
		resolver: resolver,
		breakers: breakers,
		logger:   logger.Named("surface-handler"),
	}
}

// Configure настраивает поверхность (только оператор платформы).
// PUT /apps/{appID}/admin-surface
func (h *SurfaceHandler) Configure(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	correlationID := CorrelationIDFrom(r.Context())

	accessRes, ok := h.authorize(w, r, appID, correlationID)
	if !ok {
		return
	}
	if !accessRes.CanConfigure() {
		writeError(w, http.StatusForbidden, "forbidden",
			"surface configuration requires a platform administrator", correlationID, 0)
		return
	}

	var req domain.ConfigureSurfaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body", correlationID, 0)
		return
	}

	identity, _ := auth.IdentityFrom(r.Context())
	cfg, err := h.registry.Configure(r.Context(), appID, req.BaseURL, req.AdminKey, req.Notes, identity.UserID)
	if err != nil {
		// Валидационные отказы — это 400, все прочее — 500
		if errors.Is(err, registry.ErrInvalidBaseURL) || errors.Is(err, registry.ErrWeakAdminKey) {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error(), correlationID, 0)
			return
		}
		h.logger.Error("configure failed", zap.String("app_id", appID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error",
			"failed to persist surface configuration", correlationID, 0)
		return
	}

	writeJSON(w, http.StatusOK, domain.ConfigureSurfaceResponse{
		OK:         true,
		AppID:      cfg.AppID,
		BaseURL:    cfg.BaseURL,
		Configured: true,
		UpdatedAt:  cfg.UpdatedAt,
	})
}

// Status отдает безопасную проекцию конфигурации (без ключа).
// GET /apps/{appID}/admin-surface/status
func (h *SurfaceHandler) Status(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	correlationID := CorrelationIDFrom(r.Context())

	if _, ok := h.authorize(w, r, appID, correlationID); !ok {
		return
	}

	status, err := h.registry.GetStatus(r.Context(), appID)
	if err != nil {
		h.logger.Error("status lookup failed", zap.String("app_id", appID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error",
			"failed to load surface status", correlationID, 0)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Breaker — снимок предохранителя приложения (только оператор платформы).
// GET /apps/{appID}/admin-surface/breaker
func (h *SurfaceHandler) Breaker(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	correlationID := CorrelationIDFrom(r.Context())

	accessRes, ok := h.authorize(w, r, appID, correlationID)
	if !ok {
		return
	}
	if !accessRes.CanConfigure() {
		writeError(w, http.StatusForbidden, "forbidden",
			"breaker state requires a platform administrator", correlationID, 0)
		return
	}

	writeJSON(w, http.StatusOK, h.breakers.Snapshot(appID))
}

// authorize — общий каркас: identity из контекста, резолв роли, 404 для
// удаленных приложений раньше любых проверок ролей.
func (h *SurfaceHandler) authorize(w http.ResponseWriter, r *http.Request, appID, correlationID string) (domain.AccessResult, bool) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing caller identity", correlationID, 0)
		return domain.AccessResult{}, false
	}

	accessRes, err := h.resolver.Resolve(r.Context(), appID, identity)
	if err != nil {
		if errors.Is(err, domain.ErrAppNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "app not found", correlationID, 0)
			return domain.AccessResult{}, false
		}
		h.logger.Error("access resolution failed", zap.String("app_id", appID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error",
			"failed to resolve caller access", correlationID, 0)
		return domain.AccessResult{}, false
	}
	if !accessRes.Allowed {
		writeError(w, http.StatusForbidden, "forbidden", "no access to this app", correlationID, 0)
		return domain.AccessResult{}, false
	}
	return accessRes, true
}
