package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/xela07ax/tenant-admin-gateway/internal/audit"
	"github.com/xela07ax/tenant-admin-gateway/internal/infra/auth"

	"go.uber.org/zap"
)

// AuditReader — чтение журнала аудита (append-only таблица, только SELECT).
type AuditReader interface {
	FetchEvents(ctx context.Context, appID, operation string, limit int) ([]audit.Event, error)
}

type AuditHandler struct {
	reader AuditReader
	logger *zap.Logger
}

func NewAuditHandler(reader AuditReader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{reader: reader, logger: logger.Named("audit-handler")}
}

// GetEvents возвращает события аудита с фильтрацией (только оператор платформы).
// GET /v1/audit?app_id=...&operation=...&limit=...
func (h *AuditHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	correlationID := CorrelationIDFrom(r.Context())

	identity, ok := auth.IdentityFrom(r.Context())
	if !ok || !identity.PlatformAdmin {
		writeError(w, http.StatusForbidden, "forbidden",
			"audit log requires a platform administrator", correlationID, 0)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.reader.FetchEvents(r.Context(),
		r.URL.Query().Get("app_id"),
		r.URL.Query().Get("operation"),
		limit)
	if err != nil {
		h.logger.Error("audit fetch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error",
			"failed to fetch audit events", correlationID, 0)
		return
	}

	// Фронтенд всегда получает массив, а не null
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
