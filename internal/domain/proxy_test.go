package domain

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureKindHTTPStatus(t *testing.T) {
	tests := []struct {
		kind           FailureKind
		upstreamStatus int
		want           int
	}{
		{FailureNotConfigured, 0, http.StatusConflict},
		{FailureInvalidConfiguration, 0, http.StatusInternalServerError},
		{FailureCircuitOpen, 0, http.StatusServiceUnavailable},
		{FailureTimeout, 0, http.StatusGatewayTimeout},
		{FailureNetworkError, 0, http.StatusBadGateway},
		{FailureResponseTooLarge, 0, http.StatusBadGateway},
		// Клиентские статусы апстрима проходят дословно
		{FailureUpstreamError, http.StatusNotFound, http.StatusNotFound},
		{FailureUpstreamError, http.StatusConflict, http.StatusConflict},
		// Чужие 5xx и прочая экзотика нормализуются в 502
		{FailureUpstreamError, http.StatusInternalServerError, http.StatusBadGateway},
		{FailureUpstreamError, http.StatusFound, http.StatusBadGateway},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.HTTPStatus(tt.upstreamStatus),
			"kind=%s upstream=%d", tt.kind, tt.upstreamStatus)
	}
}
