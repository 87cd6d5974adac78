package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"chatdesk/internal/models"
)

// The config store keeps snake_case keys (models.WidgetConfig json/column
// tags) while the widget bootstrap and embed snippet speak camelCase. The
// transform lives here, at the single point where that boundary is crossed,
// and every field must round-trip exactly.

// SnakeToCamel converts one snake_case key to camelCase: each underscore is
// dropped and the following letter upper-cased.
func SnakeToCamel(key string) string {
	var sb strings.Builder
	sb.Grow(len(key))
	upper := false
	for _, r := range key {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			sb.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// CamelToSnake is the inverse of SnakeToCamel: an underscore is inserted
// before each upper-case letter, which is then lower-cased.
func CamelToSnake(key string) string {
	var sb strings.Builder
	sb.Grow(len(key) + 4)
	for _, r := range key {
		if unicode.IsUpper(r) {
			sb.WriteRune('_')
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ConfigToCamelMap serializes a WidgetConfig with camelCase keys for the
// widget side of the boundary.
func ConfigToCamelMap(cfg *models.WidgetConfig) (map[string]interface{}, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var snake map[string]interface{}
	if err := json.Unmarshal(raw, &snake); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	camel := make(map[string]interface{}, len(snake))
	for k, v := range snake {
		camel[SnakeToCamel(k)] = v
	}
	return camel, nil
}

// CamelPatchToSnake rekeys an incoming camelCase patch to the store's
// snake_case convention. Values pass through untouched.
func CamelPatchToSnake(patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(patch))
	for k, v := range patch {
		out[CamelToSnake(k)] = v
	}
	return out
}
