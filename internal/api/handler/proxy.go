package handler

/*
Файл proxy.go — HTTP-обводка вокруг ядра шлюза. Здесь живут три ответственности,
которые нельзя уносить в само ядро: авторизация вызывающего против целевого
приложения, трактовка не-2xx статусов апстрима (UpstreamError — решение этого
слоя, не предохранителя) и fire-and-forget аудит мутирующих операций.
*/

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/xela07ax/tenant-admin-gateway/internal/audit"
	"github.com/xela07ax/tenant-admin-gateway/internal/domain"
	"github.com/xela07ax/tenant-admin-gateway/internal/gateway"
	"github.com/xela07ax/tenant-admin-gateway/internal/infra/auth"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Кап на тело входящего запроса: админ-вызовы маленькие, все крупное — мусор
const maxRequestBytes = 1 << 20

type ProxyHandler struct {
	gw       *gateway.Gateway
	resolver AccessResolver
	trail    audit.Writer
	logger   *zap.Logger
}

func NewProxyHandler(gw *gateway.Gateway, resolver AccessResolver, trail audit.Writer, logger *zap.Logger) *ProxyHandler {
	return &ProxyHandler{
		gw:       gw,
		resolver: resolver,
		trail:    trail,
		logger:   logger.Named("proxy-handler"),
	}
}

// proxyOp описывает один проксируемый эндпоинт.
type proxyOp struct {
	upstreamPath string
	method       string
	moduleID     string
	actionID     string
	operation    string // Имя операции для аудита; пусто => немутирующая
	normalize    bool   // Прогонять ли тело через нормализатор списков
}

// --- Модули ---

// ListModules — GET /apps/{appID}/modules
func (h *ProxyHandler) ListModules(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, proxyOp{upstreamPath: "/modules", method: http.MethodGet})
}

// GetSettings — GET /apps/{appID}/modules/{moduleID}/settings
func (h *ProxyHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	h.proxy(w, r, proxyOp{
		upstreamPath: fmt.Sprintf("/modules/%s/settings", url.PathEscape(moduleID)),
		method:       http.MethodGet,
		moduleID:     moduleID,
	})
}

// UpdateSettings — PUT /apps/{appID}/modules/{moduleID}/settings (мутирующая)
func (h *ProxyHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	h.proxy(w, r, proxyOp{
		upstreamPath: fmt.Sprintf("/modules/%s/settings", url.PathEscape(moduleID)),
		method:       http.MethodPut,
		moduleID:     moduleID,
		operation:    "settings_update",
	})
}

// ModuleStatus — GET /apps/{appID}/modules/{moduleID}/status
func (h *ProxyHandler) ModuleStatus(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	h.proxy(w, r, proxyOp{
		upstreamPath: fmt.Sprintf("/modules/%s/status", url.PathEscape(moduleID)),
		method:       http.MethodGet,
		moduleID:     moduleID,
	})
}

// InvokeAction — POST /apps/{appID}/modules/{moduleID}/actions/{actionID} (мутирующая)
func (h *ProxyHandler) InvokeAction(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	actionID := chi.URLParam(r, "actionID")
	h.proxy(w, r, proxyOp{
		upstreamPath: fmt.Sprintf("/modules/%s/actions/%s", url.PathEscape(moduleID), url.PathEscape(actionID)),
		method:       http.MethodPost,
		moduleID:     moduleID,
		actionID:     actionID,
		operation:    "action_invoke",
	})
}

// --- Пользователи tenant-приложения ---

// ListUsers — GET /apps/{appID}/admin/users?page=&limit=&q=&disabled=
// Единственный эндпоинт с нормализацией конверта: апстримы отдают списки
// в разнородных формах.
func (h *ProxyHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	query := url.Values{}
	for _, key := range []string{"page", "limit", "q", "disabled"} {
		if v := r.URL.Query().Get(key); v != "" {
			query.Set(key, v)
		}
	}
	path := "/admin/users"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	h.proxy(w, r, proxyOp{upstreamPath: path, method: http.MethodGet, normalize: true})
}

// GetUser — GET /apps/{appID}/admin/users/{userID}
func (h *ProxyHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	h.proxy(w, r, proxyOp{
		upstreamPath: fmt.Sprintf("/admin/users/%s", url.PathEscape(userID)),
		method:       http.MethodGet,
	})
}

// UserAction — POST /apps/{appID}/admin/users/action (мутирующая)
func (h *ProxyHandler) UserAction(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, proxyOp{
		upstreamPath: "/admin/users/action",
		method:       http.MethodPost,
		operation:    "user_action",
	})
}

// proxy — общий каркас проксируемого вызова.
func (h *ProxyHandler) proxy(w http.ResponseWriter, r *http.Request, op proxyOp) {
	appID := chi.URLParam(r, "appID")
	correlationID := CorrelationIDFrom(r.Context())

	// 1. Авторизация. Ранний отказ — к апстриму не идем
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing caller identity", correlationID, 0)
		return
	}
	accessRes, err := h.resolver.Resolve(r.Context(), appID, identity)
	if err != nil {
		if errors.Is(err, domain.ErrAppNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "app not found", correlationID, 0)
			return
		}
		h.logger.Error("access resolution failed", zap.String("app_id", appID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error",
			"failed to resolve caller access", correlationID, 0)
		return
	}
	if !accessRes.Allowed {
		writeError(w, http.StatusForbidden, "forbidden", "no access to this app", correlationID, 0)
		return
	}
	if op.operation != "" && !accessRes.CanMutate() {
		writeError(w, http.StatusForbidden, "forbidden",
			"this operation requires team membership", correlationID, 0)
		return
	}

	// 2. Тело запроса (с капом)
	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", correlationID, 0)
			return
		}
	}

	// 3. Вызов ядра
	result := h.gw.Send(r.Context(), appID, op.upstreamPath, op.method, body, correlationID)

	// 4. Аудит мутирующих операций — после того, как итог известен.
	// Write неблокирующий: латентность хранилища аудита не касается ответа
	if op.operation != "" {
		h.trail.Write(buildAuditEvent(appID, identity, accessRes, op, correlationID, body, result))
	}

	// 5. Ответ вызывающему
	h.respond(w, op, result, correlationID)
}

func (h *ProxyHandler) respond(w http.ResponseWriter, op proxyOp, result domain.ProxyResult, correlationID string) {
	if !result.Succeeded {
		writeError(w, result.FailureKind.HTTPStatus(0), result.ErrorCode, result.ErrorMessage, correlationID, 0)
		return
	}

	status := result.UpstreamStatusCode

	// Успех: тело апстрима как есть (204/пустое — тоже как есть)
	if status >= 200 && status < 300 {
		respBody := result.Body
		if op.normalize {
			page, limit := pagingFromPath(op.upstreamPath)
			respBody = gateway.NormalizeListBody(result.Body, result.ContentType, page, limit)
		}
		if len(respBody) == 0 {
			w.WriteHeader(status)
			return
		}
		contentType := result.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write(respBody)
		return
	}

	// UpstreamError: клиентские 4xx пробрасываем дословно — это семантика
	// самого tenant-приложения. Чужие 5xx наружу не отдаем: только 502
	if status >= 400 && status <= 499 {
		contentType := result.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write(result.Body)
		return
	}

	writeError(w, domain.FailureUpstreamError.HTTPStatus(status), "upstream_error",
		fmt.Sprintf("upstream returned status %d", status), correlationID, status)
}

func buildAuditEvent(appID string, identity domain.Identity, accessRes domain.AccessResult, op proxyOp, correlationID string, reqBody []byte, result domain.ProxyResult) audit.Event {
	success := result.Succeeded &&
		result.UpstreamStatusCode >= 200 && result.UpstreamStatusCode < 300

	errorMessage := result.ErrorMessage
	if result.Succeeded && !success {
		errorMessage = fmt.Sprintf("upstream returned status %d", result.UpstreamStatusCode)
	}

	return audit.Event{
		ID:            uuid.New().String(),
		AppID:         appID,
		ModuleID:      op.moduleID,
		ActionID:      op.actionID,
		Operation:     op.operation,
		ActorUserID:   identity.UserID,
		ActorRole:     string(accessRes.Role),
		CorrelationID: correlationID,
		Success:       success,
		StatusCode:    result.UpstreamStatusCode,
		Path:          op.upstreamPath,
		RequestBytes:  len(reqBody),
		ResponseBytes: len(result.Body),
		ErrorMessage:  errorMessage,
	}
}

// pagingFromPath достает page/limit из уже собранного query апстрим-пути.
func pagingFromPath(path string) (page, limit int) {
	u, err := url.Parse(path)
	if err != nil {
		return 0, 0
	}
	q := u.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	return page, limit
}
