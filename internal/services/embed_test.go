package services

import (
	"strings"
	"testing"
)

func TestBootstrapConfig(t *testing.T) {
	cfg := DefaultWidgetConfig("acme")
	cfg.BusinessContext = "internal notes"

	boot, err := BootstrapConfig("https://chat.example.com/", &cfg)
	if err != nil {
		t.Fatalf("BootstrapConfig failed: %v", err)
	}

	if boot["widgetKey"] != cfg.WidgetKey {
		t.Errorf("expected widgetKey, got %v", boot["widgetKey"])
	}
	if boot["primaryColor"] != "#4f46e5" {
		t.Errorf("expected primaryColor, got %v", boot["primaryColor"])
	}
	if boot["apiBase"] != "https://chat.example.com" {
		t.Errorf("expected trimmed apiBase, got %v", boot["apiBase"])
	}

	// Server-only settings never reach the page.
	for _, secret := range []string{"aiProvider", "aiModel", "aiTemperature", "businessContext", "allowedDomains", "tenantId"} {
		if _, ok := boot[secret]; ok {
			t.Errorf("%s must not ship to the widget", secret)
		}
	}
}

func TestBuildEmbedSnippet(t *testing.T) {
	cfg := DefaultWidgetConfig("acme")

	snippet, err := BuildEmbedSnippet("https://chat.example.com", "/widget.js", &cfg)
	if err != nil {
		t.Fatalf("BuildEmbedSnippet failed: %v", err)
	}

	for _, want := range []string{
		"window.ChatdeskSettings",
		`src="https://chat.example.com/widget.js"`,
		cfg.WidgetKey,
		"async",
	} {
		if !strings.Contains(snippet, want) {
			t.Errorf("snippet missing %q:\n%s", want, snippet)
		}
	}
}

func TestBuildEmbedSnippetAbsoluteBundleURL(t *testing.T) {
	cfg := DefaultWidgetConfig("acme")

	snippet, err := BuildEmbedSnippet("https://chat.example.com", "https://cdn.example.com/w.js", &cfg)
	if err != nil {
		t.Fatalf("BuildEmbedSnippet failed: %v", err)
	}
	if !strings.Contains(snippet, `src="https://cdn.example.com/w.js"`) {
		t.Errorf("absolute bundle URL should pass through:\n%s", snippet)
	}
}
