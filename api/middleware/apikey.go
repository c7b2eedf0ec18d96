package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderAPIKey is the request header carrying the service API key.
const HeaderAPIKey = "X-MAILGATE-API-KEY"

// APIKeyConfig configures API key authentication. An empty HeaderName
// falls back to HeaderAPIKey.
type APIKeyConfig struct {
	HeaderName  string
	ValidAPIKey string
}

// APIKeyMiddleware rejects requests whose key header is missing or does
// not match the configured key. The header value is trimmed first.
func APIKeyMiddleware(config APIKeyConfig) gin.HandlerFunc {
	header := config.HeaderName
	if header == "" {
		header = HeaderAPIKey
	}

	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader(header))

		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing API key",
			})
			c.Abort()
			return
		}

		if apiKey != config.ValidAPIKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
