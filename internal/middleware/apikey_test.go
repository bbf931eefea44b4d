package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequireAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		provided   string
		wantStatus int
	}{
		{"matching key", "super-secret", http.StatusOK},
		{"wrong key", "not-the-key", http.StatusForbidden},
		{"missing key", "", http.StatusForbidden},
	}

	protected := RequireAPIKey("super-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/mail/outcome/x", nil)
			if tt.provided != "" {
				req.Header.Set(APIKeyHeader, tt.provided)
			}

			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusForbidden &&
				!strings.Contains(rec.Body.String(), "Could not validate credentials") {
				t.Errorf("rejection body = %q", rec.Body.String())
			}
		})
	}
}
