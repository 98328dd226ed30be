package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/tenant-admin-gateway/internal/api/handler"
	"github.com/xela07ax/tenant-admin-gateway/internal/infra"
	"github.com/xela07ax/tenant-admin-gateway/internal/infra/auth"
	"go.uber.org/zap"
)

type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Проверка RS256 токенов платформенного IdP
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	surfaceHandler *handler.SurfaceHandler // /apps/{appID}/admin-surface
	proxyHandler   *handler.ProxyHandler   // /apps/{appID}/modules, /apps/{appID}/admin/users
	auditHandler   *handler.AuditHandler   // /v1/audit
}

// NewServer инициализирует HTTP-слой шлюза со всеми зависимостями.
func NewServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	surfaceH *handler.SurfaceHandler,
	proxyH *handler.ProxyHandler,
	auditH *handler.AuditHandler,
) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		logger:         logger.Named("gateway-api"),
		cfg:            cfg,
		authValidator:  validator,
		surfaceHandler: surfaceH,
		proxyHandler:   proxyH,
		auditHandler:   auditH,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(handler.CorrelationMiddleware)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		r.Route("/apps/{appID}", func(r chi.Router) {
			// Конфигурация поверхности (Configure — только оператор платформы)
			r.Put("/admin-surface", s.surfaceHandler.Configure)
			r.Get("/admin-surface/status", s.surfaceHandler.Status)
			r.Get("/admin-surface/breaker", s.surfaceHandler.Breaker)

			// Проксируемые модульные эндпоинты
			r.Route("/modules", func(r chi.Router) {
				r.Get("/", s.proxyHandler.ListModules)
				r.Route("/{moduleID}", func(r chi.Router) {
					r.Get("/settings", s.proxyHandler.GetSettings)
					r.Put("/settings", s.proxyHandler.UpdateSettings) // Мутирующая (аудит)
					r.Get("/status", s.proxyHandler.ModuleStatus)
					r.Post("/actions/{actionID}", s.proxyHandler.InvokeAction) // Мутирующая (аудит)
				})
			})

			// Проксируемые пользовательские эндпоинты
			r.Route("/admin/users", func(r chi.Router) {
				r.Get("/", s.proxyHandler.ListUsers) // Единственный с нормализацией конверта
				r.Get("/{userID}", s.proxyHandler.GetUser)
				r.Post("/action", s.proxyHandler.UserAction) // Мутирующая (аудит)
			})
		})

		// Журнал аудита (Observability)
		r.Get("/v1/audit", s.auditHandler.GetEvents)
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
