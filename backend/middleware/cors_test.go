package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name        string
		origins     []string
		origin      string
		method      string
		wantOrigin  string
		wantCreds   string
		wantStatus  int
		handlerRuns bool
	}{
		{name: "any origin", origin: "http://a.test", method: "GET", wantOrigin: "*", wantStatus: http.StatusOK, handlerRuns: true},
		{name: "listed origin", origins: []string{"http://app.test/"}, origin: "http://app.test", method: "GET", wantOrigin: "http://app.test", wantCreds: "true", wantStatus: http.StatusOK, handlerRuns: true},
		{name: "unlisted origin", origins: []string{"http://app.test"}, origin: "http://evil.test", method: "GET", wantStatus: http.StatusOK, handlerRuns: true},
		{name: "preflight", origin: "http://a.test", method: "OPTIONS", wantOrigin: "*", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := false
			router := gin.New()
			router.Use(CORS(tt.origins...))
			router.Handle(tt.method, "/api/dashboard", func(c *gin.Context) {
				ran = true
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, "/api/dashboard", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Expected allow origin %q, got %q", tt.wantOrigin, got)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Errorf("Expected allow credentials %q, got %q", tt.wantCreds, got)
			}
			if ran != tt.handlerRuns {
				t.Errorf("Expected handler run %v, got %v", tt.handlerRuns, ran)
			}
		})
	}
}
