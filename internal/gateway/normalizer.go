package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Envelope — канонический конверт пагинации, который шлюз отдает наружу
// для всех списочных ответов.
type Envelope struct {
	Items []json.RawMessage `json:"items"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
	Total int               `json:"total"`
	Pages int               `json:"pages"`
}

// Апстримы возвращают списки в разнородных формах. Распознаем три:
//   - предпочтительная: {items[], page, limit, total, pages} — отдаем как есть;
//   - терпимая:         {users[], page, pageSize, totalCount, totalPages} — как есть;
//   - голый массив либо объект с items/users без полной меты — оборачиваем.
//
// Все прочее — pass-through: нормализация best-effort и никогда не роняет запрос.
func NormalizeListBody(body []byte, contentType string, page, limit int) []byte {
	if !strings.Contains(strings.ToLower(contentType), "json") {
		return body
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return body
	}

	// Голый массив в корне
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return body
		}
		return wrapItems(body, items, page, limit)
	}

	if trimmed[0] != '{' {
		return body
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &root); err != nil {
		return body
	}

	// Уже каноническая форма — возвращаем байт-в-байт (идемпотентность)
	if hasArray(root, "items") && hasAll(root, "page", "limit", "total", "pages") {
		return body
	}
	// Терпимая форма тоже проходит без изменений
	if hasArray(root, "users") && hasAll(root, "page", "pageSize", "totalCount", "totalPages") {
		return body
	}

	// Массив есть, меты нет — оборачиваем
	for _, key := range []string{"items", "users"} {
		raw, ok := root[key]
		if !ok || !isArray(raw) {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return body
		}
		return wrapItems(body, items, page, limit)
	}

	// Объект без items/users — не наше, отдаем как есть
	return body
}

// wrapItems собирает конверт. total — длина массива как он пришел:
// предполагается, что апстрим уже применил свой paging.
func wrapItems(original []byte, items []json.RawMessage, page, limit int) []byte {
	total := len(items)
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = total
	}

	pages := 1
	if limit > 0 {
		pages = (total + limit - 1) / limit
		if pages < 1 {
			pages = 1
		}
	}

	if items == nil {
		items = []json.RawMessage{}
	}

	out, err := json.Marshal(Envelope{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: pages,
	})
	if err != nil {
		return original
	}
	return out
}

func hasAll(root map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		if _, ok := root[k]; !ok {
			return false
		}
	}
	return true
}

func hasArray(root map[string]json.RawMessage, key string) bool {
	raw, ok := root[key]
	return ok && isArray(raw)
}

func isArray(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}
