package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/tenant-admin-gateway/internal/audit"
	"github.com/xela07ax/tenant-admin-gateway/internal/breaker"
	"github.com/xela07ax/tenant-admin-gateway/internal/domain"
	"github.com/xela07ax/tenant-admin-gateway/internal/gateway"
	"github.com/xela07ax/tenant-admin-gateway/internal/infra/auth"
	"github.com/xela07ax/tenant-admin-gateway/internal/vault"
)

// fakeResolver отдает заранее заданный вердикт авторизации.
type fakeResolver struct {
	result domain.AccessResult
	err    error
}

func (f *fakeResolver) Resolve(_ context.Context, _ string, _ domain.Identity) (domain.AccessResult, error) {
	return f.result, f.err
}

// fakeTrail собирает события аудита синхронно, без канала.
type fakeTrail struct {
	mu     sync.Mutex
	events []audit.Event
}

func (f *fakeTrail) Write(event audit.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeTrail) all() []audit.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]audit.Event(nil), f.events...)
}

// staticSource — конфигурация поверхности в памяти.
type staticSource struct {
	cfg *domain.AdminSurfaceConfig
}

func (s *staticSource) GetForProxy(_ context.Context, _ string) (*domain.AdminSurfaceConfig, error) {
	return s.cfg, nil
}

type proxyTestEnv struct {
	router   chi.Router
	trail    *fakeTrail
	identity domain.Identity
}

// newProxyEnv собирает роутер с полным прокси-контуром: настоящие gateway,
// vault и предохранители, фейковые resolver и trail.
func newProxyEnv(t *testing.T, upstreamURL string, resolver AccessResolver) *proxyTestEnv {
	t.Helper()

	v, err := vault.New(bytes.Repeat([]byte{0x33}, 32), vault.PurposeAdminKey)
	require.NoError(t, err)

	var src gateway.ConfigSource = &staticSource{}
	if upstreamURL != "" {
		encrypted, err := v.Protect([]byte("plain-admin-key-16ch"))
		require.NoError(t, err)
		src = &staticSource{cfg: &domain.AdminSurfaceConfig{
			AppID:             "app_1",
			BaseURL:           upstreamURL,
			AdminKeyEncrypted: encrypted,
		}}
	}

	breakers := breaker.NewRegistry(breaker.DefaultConfig(), zap.NewNop(), nil)
	gw := gateway.New(src, v, breakers, &http.Client{},
		gateway.Options{RatePerSecond: 10000, RateBurst: 10000},
		gateway.NewMetrics(nil), zap.NewNop())

	env := &proxyTestEnv{
		trail:    &fakeTrail{},
		identity: domain.Identity{UserID: "user_7"},
	}

	h := NewProxyHandler(gw, resolver, env.trail, zap.NewNop())

	r := chi.NewRouter()
	r.Use(CorrelationMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithIdentity(req.Context(), env.identity)))
		})
	})
	r.Route("/apps/{appID}", func(r chi.Router) {
		r.Route("/modules", func(r chi.Router) {
			r.Get("/", h.ListModules)
			r.Route("/{moduleID}", func(r chi.Router) {
				r.Get("/settings", h.GetSettings)
				r.Put("/settings", h.UpdateSettings)
				r.Get("/status", h.ModuleStatus)
				r.Post("/actions/{actionID}", h.InvokeAction)
			})
		})
		r.Route("/admin/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Get("/{userID}", h.GetUser)
			r.Post("/action", h.UserAction)
		})
	})
	env.router = r
	return env
}

func allowedMember() *fakeResolver {
	return &fakeResolver{result: domain.AccessResult{Role: domain.RoleTeam, Allowed: true}}
}

func doRequest(env *proxyTestEnv, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestProxy_ListUsersNormalizedEnvelope(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Апстрим получает наш query и отвечает голым массивом
		assert.Equal(t, "/admin/users", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":"u1"},{"id":"u2"},{"id":"u3"},{"id":"u4"},{"id":"u5"},{"id":"u6"}]`)
	}))
	defer upstream.Close()

	env := newProxyEnv(t, upstream.URL, allowedMember())
	rec := doRequest(env, http.MethodGet, "/apps/app_1/admin/users?page=2&limit=10", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var envBody gateway.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envBody))
	assert.Len(t, envBody.Items, 6)
	assert.Equal(t, 2, envBody.Page)
	assert.Equal(t, 10, envBody.Limit)
	assert.Equal(t, 6, envBody.Total)
	assert.Equal(t, 1, envBody.Pages)
}

func TestProxy_CorrelationIDEchoedAndForwarded(t *testing.T) {
	var upstreamSawCorrelation string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamSawCorrelation = r.Header.Get(HeaderCorrelationID)
		fmt.Fprint(w, `{"modules":[]}`)
	}))
	defer upstream.Close()

	env := newProxyEnv(t, upstream.URL, allowedMember())
	rec := doRequest(env, http.MethodGet, "/apps/app_1/modules/", nil,
		map[string]string{HeaderCorrelationID: "corr-abc"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "corr-abc", rec.Header().Get(HeaderCorrelationID))
	assert.Equal(t, "corr-abc", upstreamSawCorrelation)
}

func TestProxy_GeneratedCorrelationIDWhenAbsent(t *testing.T) {
	env := newProxyEnv(t, "", allowedMember())
	rec := doRequest(env, http.MethodGet, "/apps/app_1/modules/", nil, nil)

	// Заголовок появился в ответе даже при сгенерированном ID
	generated := rec.Header().Get(HeaderCorrelationID)
	assert.NotEmpty(t, generated)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, generated, body.CorrelationID)
}

func TestProxy_NotConfiguredIs409(t *testing.T) {
	env := newProxyEnv(t, "", allowedMember())
	rec := doRequest(env, http.MethodGet, "/apps/app_1/modules/", nil,
		map[string]string{HeaderCorrelationID: "corr-409"})

	require.Equal(t, http.StatusConflict, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_configured", body.Error)
	assert.Equal(t, "corr-409", body.CorrelationID)
}

func TestProxy_Upstream404PassedThroughVerbatim(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"user_not_found","hint":"check the id"}`)
	}))
	defer upstream.Close()

	env := newProxyEnv(t, upstream.URL, allowedMember())
	rec := doRequest(env, http.MethodGet, "/apps/app_1/admin/users/ghost", nil, nil)

	// 4xx — семантика самого tenant-приложения, тело не переписываем
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"user_not_found","hint":"check the id"}`, rec.Body.String())
}

func TestProxy_Upstream500BecomesBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "panic: nil pointer", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	env := newProxyEnv(t, upstream.URL, allowedMember())
	rec := doRequest(env, http.MethodGet, "/apps/app_1/modules/", nil, nil)

	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "upstream_error", body.Error)
	assert.Equal(t, http.StatusInternalServerError, body.UpstreamStatusCode)
	// Сырое тело чужого 5xx наружу не утекает
	assert.NotContains(t, rec.Body.String(), "panic")
}

func TestProxy_EmptyUpstreamBodyPassedThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	env := newProxyEnv(t, upstream.URL, allowedMember())
	rec := doRequest(env, http.MethodPost, "/apps/app_1/modules/billing/actions/resync", nil, nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestProxy_MutatingOperationIsAudited(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer upstream.Close()

	env := newProxyEnv(t, upstream.URL, allowedMember())
	payload := []byte(`{"enabled":false}`)
	rec := doRequest(env, http.MethodPut, "/apps/app_1/modules/billing/settings", payload,
		map[string]string{HeaderCorrelationID: "corr-audit"})

	require.Equal(t, http.StatusOK, rec.Code)

	events := env.trail.all()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "app_1", ev.AppID)
	assert.Equal(t, "billing", ev.ModuleID)
	assert.Equal(t, "settings_update", ev.Operation)
	assert.Equal(t, "user_7", ev.ActorUserID)
	assert.Equal(t, string(domain.RoleTeam), ev.ActorRole)
	assert.Equal(t, "corr-audit", ev.CorrelationID)
	assert.True(t, ev.Success)
	assert.Equal(t, http.StatusOK, ev.StatusCode)
	assert.Equal(t, len(payload), ev.RequestBytes)
	assert.NotEmpty(t, ev.ID)
}

func TestProxy_FailedMutationAuditedAsFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"locked"}`, http.StatusConflict)
	}))
	defer upstream.Close()

	env := newProxyEnv(t, upstream.URL, allowedMember())
	rec := doRequest(env, http.MethodPost, "/apps/app_1/admin/users/action",
		[]byte(`{"userId":"u1","action":"disable"}`), nil)

	// 409 апстрима уходит вызывающему дословно
	require.Equal(t, http.StatusConflict, rec.Code)

	events := env.trail.all()
	require.Len(t, events, 1)
	assert.Equal(t, "user_action", events[0].Operation)
	assert.False(t, events[0].Success)
	assert.Equal(t, http.StatusConflict, events[0].StatusCode)
	assert.Contains(t, events[0].ErrorMessage, "409")
}

func TestProxy_ReadOnlyCallsAreNotAudited(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"modules":[]}`)
	}))
	defer upstream.Close()

	env := newProxyEnv(t, upstream.URL, allowedMember())
	rec := doRequest(env, http.MethodGet, "/apps/app_1/modules/", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.trail.all())
}

func TestProxy_AppNotFoundIs404(t *testing.T) {
	env := newProxyEnv(t, "", &fakeResolver{err: domain.ErrAppNotFound})
	rec := doRequest(env, http.MethodGet, "/apps/ghost/modules/", nil, nil)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body.Error)
}

func TestProxy_DeniedCallerIs403(t *testing.T) {
	env := newProxyEnv(t, "", &fakeResolver{result: domain.AccessResult{Role: domain.RoleNone, Allowed: false}})
	rec := doRequest(env, http.MethodGet, "/apps/app_1/modules/", nil, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	// До апстрима и аудита дело не дошло
	assert.Empty(t, env.trail.all())
}

func TestProxy_UserActionBodyForwarded(t *testing.T) {
	var gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		gotBody = buf.String()
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer upstream.Close()

	env := newProxyEnv(t, upstream.URL, allowedMember())
	rec := doRequest(env, http.MethodPost, "/apps/app_1/admin/users/action",
		[]byte(`{"userId":"u1","action":"reset_password"}`), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":"u1","action":"reset_password"}`, gotBody)
}
