package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderInviteTemplate(t *testing.T) {
	data := InviteData{
		AppName:     "Wayfare",
		InviterName: "Ada",
		TravelTitle: "Kyoto in Autumn",
		Role:        "editor",
		InviteURL:   "https://example.com/invites/accept?token=abc123",
	}

	html, err := renderTemplate(inviteEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Wayfare") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Ada") {
		t.Error("template should contain inviter name")
	}
	if !strings.Contains(html, "Kyoto in Autumn") {
		t.Error("template should contain travel title")
	}
	if !strings.Contains(html, "https://example.com/invites/accept?token=abc123") {
		t.Error("template should contain invite URL")
	}
	if !strings.Contains(html, "editor") {
		t.Error("template should contain the offered role")
	}
}
