package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tendant/tenant-invite/internal/config"
)

func serveHeaders(h func(http.Handler) http.Handler) http.Header {
	handler := h(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SecurityHeadersConfig
		want map[string]string
	}{
		{
			name: "all set",
			cfg: config.SecurityHeadersConfig{
				Enabled:            true,
				CSP:                "default-src 'none'",
				HSTSMaxAge:         31536000,
				FrameOptions:       "DENY",
				ContentTypeOptions: "nosniff",
				XSSProtection:      "0",
				ReferrerPolicy:     "no-referrer",
				PermissionsPolicy:  "geolocation=()",
			},
			want: map[string]string{
				"Content-Security-Policy":   "default-src 'none'",
				"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
				"X-Frame-Options":           "DENY",
				"X-Content-Type-Options":    "nosniff",
				"X-XSS-Protection":          "0",
				"Referrer-Policy":           "no-referrer",
				"Permissions-Policy":        "geolocation=()",
			},
		},
		{
			name: "disabled",
			cfg:  config.SecurityHeadersConfig{Enabled: false, CSP: "default-src 'self'", HSTSMaxAge: 10},
			want: map[string]string{"Content-Security-Policy": "", "Strict-Transport-Security": ""},
		},
		{
			name: "empty values skipped",
			cfg:  config.SecurityHeadersConfig{Enabled: true, FrameOptions: "SAMEORIGIN"},
			want: map[string]string{
				"Content-Security-Policy":   "",
				"Strict-Transport-Security": "",
				"X-Frame-Options":           "SAMEORIGIN",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serveHeaders(SecurityHeaders(tt.cfg))
			for name, want := range tt.want {
				if v := got.Get(name); v != want {
					t.Errorf("%s = %q, want %q", name, v, want)
				}
			}
		})
	}
}

func TestNoStore(t *testing.T) {
	got := serveHeaders(NoStore)
	if v := got.Get("Cache-Control"); v != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", v)
	}
}
