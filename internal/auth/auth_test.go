package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		cfg    Config
		method string
		path   string
		header string
		want   int
	}{
		{"disabled", Config{}, "POST", "/api/v1/constellation", "", http.StatusNoContent},
		{"missing token", Config{Enabled: true, Token: "s3cret"}, "POST", "/api/v1/constellation", "", http.StatusUnauthorized},
		{"wrong token", Config{Enabled: true, Token: "s3cret"}, "POST", "/api/v1/constellation", "Bearer nope", http.StatusUnauthorized},
		{"no bearer prefix", Config{Enabled: true, Token: "s3cret"}, "POST", "/api/v1/constellation", "s3cret", http.StatusUnauthorized},
		{"valid token", Config{Enabled: true, Token: "s3cret"}, "POST", "/api/v1/constellation", "Bearer s3cret", http.StatusNoContent},
		{"lowercase scheme", Config{Enabled: true, Token: "s3cret"}, "POST", "/api/v1/constellation", "bearer s3cret", http.StatusNoContent},
		{"empty bearer", Config{Enabled: true, Token: "s3cret"}, "POST", "/api/v1/constellation", "Bearer ", http.StatusUnauthorized},
		{"basic scheme", Config{Enabled: true, Token: "s3cret"}, "POST", "/api/v1/constellation", "Basic s3cret", http.StatusUnauthorized},
		{"exempt TLE export", Config{Enabled: true, Token: "s3cret"}, "GET", "/api/v1/constellation/tle", "", http.StatusNoContent},
		{"exempt websocket", Config{Enabled: true, Token: "s3cret"}, "GET", "/api/v1/ws/scene", "", http.StatusNoContent},
		{"exempt path", Config{Enabled: true, Token: "s3cret"}, "GET", "/healthz", "", http.StatusNoContent},
		{"exempt stream", Config{Enabled: true, Token: "s3cret"}, "GET", "/api/v1/stream/scene", "", http.StatusNoContent},
		{"private read", Config{Enabled: true, Token: "s3cret"}, "GET", "/api/v1/coverage", "", http.StatusUnauthorized},
		{"public read", Config{Enabled: true, Token: "s3cret", PublicReads: true}, "GET", "/api/v1/coverage", "", http.StatusNoContent},
		{"public reads still guard writes", Config{Enabled: true, Token: "s3cret", PublicReads: true}, "POST", "/api/v1/constellation/demo", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			Middleware(tt.cfg)(ok).ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestUnauthorizedResponse(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/constellation", nil)
	w := httptest.NewRecorder()
	Middleware(Config{Enabled: true, Token: "s3cret"})(http.NotFoundHandler()).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got == "" {
		t.Error("missing WWW-Authenticate header")
	}
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Success || body.Error != "unauthorized" {
		t.Errorf("body = %+v", body)
	}
}
