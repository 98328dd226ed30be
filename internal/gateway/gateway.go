package gateway

/*
Файл gateway.go реализует ядро прокси-шлюза: один вызов к приватной
админ-поверхности tenant-приложения с полным жизненным циклом —
конфигурация, расшифровка ключа, предохранитель, ограниченный HTTP-вызов,
классификация исхода.

Ключевой инвариант: здоровье предохранителя отражает ДОСТУПНОСТЬ апстрима,
а не корректность его бизнес-логики. Любой полученный ответ (включая
4xx/5xx) фиксируется как успех предохранителя — 404 от живого сервиса
не повод резать трафик.
*/

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/xela07ax/tenant-admin-gateway/internal/breaker"
	"github.com/xela07ax/tenant-admin-gateway/internal/domain"
	"github.com/xela07ax/tenant-admin-gateway/internal/vault"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HeaderAdminKey — заголовок, в котором админ-ключ уходит к апстриму.
const HeaderAdminKey = "X-Admin-Key"

// HeaderCorrelationID прокидывается сквозь все вызовы для трассировки.
const HeaderCorrelationID = "x-correlation-id"

// ConfigSource отдает конфигурацию поверхности для проксирования.
// (nil, nil) — приложение не сконфигурировано.
type ConfigSource interface {
	GetForProxy(ctx context.Context, appID string) (*domain.AdminSurfaceConfig, error)
}

type Options struct {
	RequestTimeout   time.Duration // Потолок на один вызов к апстриму
	MaxResponseBytes int64         // Кап на тело ответа (защита от раздувания памяти)
	RatePerSecond    float64       // Исходящий лимит на одно приложение
	RateBurst        int
}

func DefaultOptions() Options {
	return Options{
		RequestTimeout:   15 * time.Second,
		MaxResponseBytes: 2 << 20, // 2 MiB
		RatePerSecond:    20,
		RateBurst:        10,
	}
}

type Gateway struct {
	source   ConfigSource
	vault    vault.Vault
	breakers *breaker.Registry
	client   *http.Client
	opts     Options
	metrics  *Metrics
	logger   *zap.Logger

	// Лимитеры партиционированы по appID, как и предохранители
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(
	source ConfigSource,
	v vault.Vault,
	breakers *breaker.Registry,
	client *http.Client,
	opts Options,
	metrics *Metrics,
	logger *zap.Logger,
) *Gateway {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultOptions().RequestTimeout
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = DefaultOptions().MaxResponseBytes
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = DefaultOptions().RatePerSecond
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = DefaultOptions().RateBurst
	}
	if client == nil {
		client = &http.Client{}
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Gateway{
		source:   source,
		vault:    v,
		breakers: breakers,
		client:   client,
		opts:     opts,
		metrics:  metrics,
		logger:   logger.Named("gateway"),
	}
}

// Send выполняет один проксированный вызов. Контекст вызывающего
// пробрасывается до апстрима: оборванный клиентский запрос освобождает
// соединение сразу, а не по таймауту.
func (g *Gateway) Send(ctx context.Context, appID, path, method string, body []byte, correlationID string) domain.ProxyResult {
	start := time.Now()
	g.metrics.ProxyTotal.WithLabelValues(appID, method).Inc()

	result := g.send(ctx, appID, path, method, body, correlationID)

	outcome := "success"
	if !result.Succeeded {
		outcome = string(result.FailureKind)
	}
	g.metrics.ProxyDuration.WithLabelValues(appID, outcome).Observe(time.Since(start).Seconds())

	if !result.Succeeded {
		g.logger.Warn("proxy call failed",
			zap.String("app_id", appID),
			zap.String("path", path),
			zap.String("failure_kind", string(result.FailureKind)),
			zap.String("correlation_id", correlationID))
	}
	return result
}

func (g *Gateway) send(ctx context.Context, appID, path, method string, body []byte, correlationID string) domain.ProxyResult {
	// 1. Конфигурация поверхности
	cfg, err := g.source.GetForProxy(ctx, appID)
	if err != nil {
		return failure(domain.FailureInvalidConfiguration, "config_lookup_failed",
			"admin surface configuration could not be loaded")
	}
	if cfg == nil {
		return failure(domain.FailureNotConfigured, "not_configured",
			"admin surface is not configured for this app")
	}

	// 2. Расшифровка ключа. Битый шифртекст — это испорченная конфигурация,
	// а не "пустой ключ": молча идти к апстриму без авторизации нельзя
	adminKey, err := g.vault.Unprotect(cfg.AdminKeyEncrypted)
	if err != nil {
		return failure(domain.FailureInvalidConfiguration, "key_decryption_failed",
			"stored admin key cannot be decrypted; reconfigure the surface")
	}

	// 3. Исходящий лимит на приложение
	if err := g.limiter(appID).Wait(ctx); err != nil {
		return failure(domain.FailureTimeout, "rate_limit_wait",
			"request canceled while waiting for an upstream slot")
	}

	// 4. Предохранитель. Отказ здесь — локальный, сеть не трогаем
	done, ok := g.breakers.Admit(appID)
	if !ok {
		return failure(domain.FailureCircuitOpen, "circuit_open",
			"upstream is temporarily unavailable (circuit open)")
	}

	// 5. Ограниченный HTTP-вызов
	reqCtx, cancel := context.WithTimeout(ctx, g.opts.RequestTimeout)
	defer cancel()

	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, cfg.BaseURL+path, reqBody)
	if err != nil {
		done(false)
		return failure(domain.FailureInvalidConfiguration, "bad_upstream_url",
			fmt.Sprintf("cannot build upstream request: %v", err))
	}
	req.Header.Set(HeaderAdminKey, string(adminKey))
	req.Header.Set(HeaderCorrelationID, correlationID)
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		done(false)
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	// 6. Тело читаем с капом: maxBytes+1, чтобы отличить "ровно кап" от перебора
	data, err := io.ReadAll(io.LimitReader(resp.Body, g.opts.MaxResponseBytes+1))
	if err != nil {
		done(false)
		return classifyTransportError(err)
	}
	if int64(len(data)) > g.opts.MaxResponseBytes {
		done(false)
		return failure(domain.FailureResponseTooLarge, "response_too_large",
			fmt.Sprintf("upstream response exceeds %d bytes", g.opts.MaxResponseBytes))
	}

	// Апстрим ответил — для предохранителя это здоровье, независимо от статуса
	done(true)

	return domain.ProxyResult{
		Succeeded:          true,
		UpstreamStatusCode: resp.StatusCode,
		ContentType:        resp.Header.Get("Content-Type"),
		Body:               data,
	}
}

func (g *Gateway) limiter(appID string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.limiters == nil {
		g.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := g.limiters[appID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(g.opts.RatePerSecond), g.opts.RateBurst)
		g.limiters[appID] = l
	}
	return l
}

// classifyTransportError разделяет таймауты и сетевые отказы (DNS/TCP/TLS).
func classifyTransportError(err error) domain.ProxyResult {
	timeout := errors.Is(err, context.DeadlineExceeded)

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		timeout = true
	}

	if timeout {
		return failure(domain.FailureTimeout, "upstream_timeout",
			"upstream did not answer within the request timeout")
	}
	return failure(domain.FailureNetworkError, "network_error",
		"upstream is unreachable")
}

func failure(kind domain.FailureKind, code, message string) domain.ProxyResult {
	return domain.ProxyResult{
		Succeeded:    false,
		FailureKind:  kind,
		ErrorCode:    code,
		ErrorMessage: message,
	}
}
