package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeListBody_PreferredShapePassesThroughUnchanged(t *testing.T) {
	body := []byte(`{"items":[{"id":"u1"}],"page":3,"limit":5,"total":40,"pages":8}`)

	out := NormalizeListBody(body, "application/json", 1, 10)

	// Идемпотентность: байт-в-байт
	assert.Equal(t, body, out)
}

func TestNormalizeListBody_ToleratedShapePassesThroughUnchanged(t *testing.T) {
	body := []byte(`{"users":[{"id":"u1"}],"page":1,"pageSize":20,"totalCount":55,"totalPages":3}`)

	out := NormalizeListBody(body, "application/json; charset=utf-8", 1, 10)

	assert.Equal(t, body, out)
}

func TestNormalizeListBody_BareArrayWrapped(t *testing.T) {
	items := make([]map[string]string, 7)
	for i := range items {
		items[i] = map[string]string{"id": string(rune('a' + i))}
	}
	body, err := json.Marshal(items)
	require.NoError(t, err)

	tests := []struct {
		name        string
		page, limit int
		wantPage    int
		wantLimit   int
		wantPages   int
	}{
		{name: "limit unset", page: 0, limit: 0, wantPage: 1, wantLimit: 7, wantPages: 1},
		{name: "limit 2", page: 1, limit: 2, wantPage: 1, wantLimit: 2, wantPages: 4},
		{name: "requested page echoed", page: 2, limit: 10, wantPage: 2, wantLimit: 10, wantPages: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NormalizeListBody(body, "application/json", tt.page, tt.limit)

			var env Envelope
			require.NoError(t, json.Unmarshal(out, &env))
			assert.Len(t, env.Items, 7)
			assert.Equal(t, tt.wantPage, env.Page)
			assert.Equal(t, tt.wantLimit, env.Limit)
			assert.Equal(t, 7, env.Total)
			assert.Equal(t, tt.wantPages, env.Pages)
		})
	}
}

func TestNormalizeListBody_ObjectWithItemsNoMetaWrapped(t *testing.T) {
	body := []byte(`{"items":[{"id":"m1"},{"id":"m2"}]}`)

	out := NormalizeListBody(body, "application/json", 0, 0)

	var env Envelope
	require.NoError(t, json.Unmarshal(out, &env))
	assert.Len(t, env.Items, 2)
	assert.Equal(t, 1, env.Page)
	assert.Equal(t, 2, env.Limit)
	assert.Equal(t, 2, env.Total)
	assert.Equal(t, 1, env.Pages)
}

func TestNormalizeListBody_UsersArrayNoMetaWrapped(t *testing.T) {
	body := []byte(`{"users":[{"id":"u1"}],"page":1}`)

	out := NormalizeListBody(body, "application/json", 1, 1)

	var env Envelope
	require.NoError(t, json.Unmarshal(out, &env))
	assert.Len(t, env.Items, 1)
	assert.Equal(t, 1, env.Total)
}

func TestNormalizeListBody_EmptyArrayWrapped(t *testing.T) {
	out := NormalizeListBody([]byte(`[]`), "application/json", 0, 0)

	var env Envelope
	require.NoError(t, json.Unmarshal(out, &env))
	assert.NotNil(t, env.Items)
	assert.Empty(t, env.Items)
	assert.Equal(t, 0, env.Total)
	assert.Equal(t, 1, env.Pages) // pages всегда >= 1
}

func TestNormalizeListBody_PassThroughCases(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
	}{
		{name: "unrecognized object", body: `{"status":"ok","uptime":42}`, contentType: "application/json"},
		{name: "non-json content type", body: `[1,2,3]`, contentType: "text/plain"},
		{name: "invalid json", body: `{"items":[`, contentType: "application/json"},
		{name: "scalar root", body: `42`, contentType: "application/json"},
		{name: "empty body", body: ``, contentType: "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NormalizeListBody([]byte(tt.body), tt.contentType, 1, 10)
			// Нормализация best-effort: не ломаем то, чего не понимаем
			assert.Equal(t, []byte(tt.body), out)
		})
	}
}
