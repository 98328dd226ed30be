package domain

import "net/http"

// FailureKind классифицирует исход проксированного вызова.
type FailureKind string

const (
	FailureNotConfigured        FailureKind = "not_configured"        // Для приложения нет конфигурации
	FailureInvalidConfiguration FailureKind = "invalid_configuration" // Конфигурация есть, но ключ не расшифровывается
	FailureCircuitOpen          FailureKind = "circuit_open"          // Локальный отказ, сеть не трогаем
	FailureTimeout              FailureKind = "timeout"
	FailureNetworkError         FailureKind = "network_error" // DNS/TCP/TLS
	FailureResponseTooLarge     FailureKind = "response_too_large"
	FailureUpstreamError        FailureKind = "upstream_error" // Выставляет вызывающий слой для не-2xx статусов
)

// ProxyResult — структурированный итог одного вызова к tenant-поверхности.
// Инвариант: либо Succeeded=true и есть тело/статус, либо Succeeded=false
// и заполнен FailureKind.
type ProxyResult struct {
	Succeeded          bool
	UpstreamStatusCode int
	ContentType        string
	Body               []byte

	FailureKind  FailureKind
	ErrorCode    string
	ErrorMessage string
}

// HTTPStatus отображает классификацию отказа на статус ответа шлюза.
// Контракт: не пробрасываем наружу чужие 5xx как свои — для UpstreamError
// отдаем клиентский 4xx как есть, все остальное нормализуем в 502.
func (k FailureKind) HTTPStatus(upstreamStatus int) int {
	switch k {
	case FailureNotConfigured:
		return http.StatusConflict
	case FailureInvalidConfiguration:
		return http.StatusInternalServerError
	case FailureCircuitOpen:
		return http.StatusServiceUnavailable
	case FailureTimeout:
		return http.StatusGatewayTimeout
	case FailureNetworkError, FailureResponseTooLarge:
		return http.StatusBadGateway
	case FailureUpstreamError:
		if upstreamStatus >= 400 && upstreamStatus <= 499 {
			return upstreamStatus
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
