package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"chatdesk/internal/models"
)

// The embed snippet is the script tag a tenant pastes before the closing
// body tag of their site. It loads the widget bundle and hands it the
// camelCase config subset the widget needs before its first round trip.

var embedTmpl = template.Must(template.New("embed").Parse(
	`<!-- chatdesk widget -->
<script>
  window.ChatdeskSettings = {{.Settings}};
</script>
<script async src="{{.BundleURL}}"></script>
<!-- end chatdesk widget -->`))

// Bootstrap fields shipped to the widget. Credentials and server-only knobs
// (AI provider settings, allowed domains) stay out of the page source.
var embedConfigFields = []string{
	"widget_key",
	"primary_color",
	"accent_color",
	"position",
	"launcher_icon",
	"welcome_message",
	"placeholder_text",
	"header_title",
	"header_subtitle",
	"offline_message",
	"show_branding",
	"auto_open_delay",
	"track_page_views",
	"track_scroll_depth",
	"track_clicks",
	"track_mouse_activity",
	"track_time_on_page",
}

// BootstrapConfig builds the camelCase init object for the widget from a
// stored config.
func BootstrapConfig(baseURL string, cfg *models.WidgetConfig) (map[string]interface{}, error) {
	camel, err := ConfigToCamelMap(cfg)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(embedConfigFields)+1)
	for _, snake := range embedConfigFields {
		key := SnakeToCamel(snake)
		if v, ok := camel[key]; ok {
			out[key] = v
		}
	}
	out["apiBase"] = strings.TrimRight(baseURL, "/")
	return out, nil
}

// BuildEmbedSnippet renders the copy-paste script tag for a tenant.
func BuildEmbedSnippet(baseURL, bundleURL string, cfg *models.WidgetConfig) (string, error) {
	settings, err := BootstrapConfig(baseURL, cfg)
	if err != nil {
		return "", err
	}
	encoded, err := json.MarshalIndent(settings, "  ", "  ")
	if err != nil {
		return "", fmt.Errorf("encode settings: %w", err)
	}

	src := bundleURL
	if strings.HasPrefix(src, "/") {
		src = strings.TrimRight(baseURL, "/") + src
	}

	var sb strings.Builder
	err = embedTmpl.Execute(&sb, struct {
		Settings  string
		BundleURL string
	}{Settings: string(encoded), BundleURL: src})
	if err != nil {
		return "", fmt.Errorf("render embed snippet: %w", err)
	}
	return sb.String(), nil
}
