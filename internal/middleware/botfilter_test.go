package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/middleware"
)

func classify(t *testing.T, userAgent string) string {
	t.Helper()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.BotFilter())
	r.POST("/api/v1/views/:item_id", func(c *gin.Context) {
		if middleware.IsBot(c) {
			c.String(http.StatusOK, "bot")
			return
		}
		c.String(http.StatusOK, "human")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/views/stmt-1", http.NoBody)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	r.ServeHTTP(w, req)
	return w.Body.String()
}

func TestBotFilter(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{"browser", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", "human"},
		{"googlebot", "Googlebot/2.1 (+http://www.google.com/bot.html)", "bot"},
		{"headless prerender", "Mozilla/5.0 HeadlessChrome/120.0.0.0", "bot"},
		{"missing", "", "bot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(t, tt.ua); got != tt.want {
				t.Errorf("classify(%q) = %q, want %q", tt.ua, got, tt.want)
			}
		})
	}
}
