package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// isBotKey is the gin context key set by BotFilter.
const isBotKey = "is_bot"

// botPatterns are known crawler and prerender User-Agent substrings (lowercase).
var botPatterns = []string{
	"googlebot", "bingbot", "slurp", "duckduckbot",
	"baiduspider", "yandexbot", "facebookexternalhit",
	"twitterbot", "linkedinbot", "embedly", "applebot",
	"semrushbot", "ahrefsbot", "mj12bot", "dotbot",
	"petalbot", "bytespider", "gptbot", "ccbot",
	"headlesschrome", "lighthouse", "prerender",
	"line-poker", "hatena",
}

// BotFilter marks requests from known bots so the handler can answer without
// counting a view.
func BotFilter() gin.HandlerFunc {
	return func(c *gin.Context) {
		ua := strings.ToLower(c.Request.UserAgent())
		if ua == "" || isBot(ua) {
			c.Set(isBotKey, true)
		}
		c.Next()
	}
}

// IsBot reports whether BotFilter flagged the request.
func IsBot(c *gin.Context) bool {
	return c.GetBool(isBotKey)
}

func isBot(ua string) bool {
	for _, pattern := range botPatterns {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
