package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookToken(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		token      string
		header     string
		wantStatus int
	}{
		{"valid token", "secret", "secret", http.StatusOK},
		{"wrong token", "secret", "nope", http.StatusForbidden},
		{"missing header", "secret", "", http.StatusForbidden},
		{"unconfigured", "", "anything", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := WebhookToken(tt.token, "X-Webhook-Token")
			req := httptest.NewRequest(http.MethodPost, "/callbacks/telephony", nil)
			if tt.header != "" {
				req.Header.Set("X-Webhook-Token", tt.header)
			}
			rec := httptest.NewRecorder()

			mw(okHandler).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}
