package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS answers cross-origin requests from the allowed origins only. An
// entry of "*" allows any origin; an empty list allows none.
func CORS(allowed []string) gin.HandlerFunc {
	anyOrigin := false
	origins := map[string]struct{}{}
	for _, o := range cleanStrings(allowed) {
		if o == "*" {
			anyOrigin = true
			continue
		}
		origins[normalizeOrigin(o)] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			_, ok := origins[normalizeOrigin(origin)]
			if anyOrigin || ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

// OriginHosts turns allowed origins into websocket origin patterns, which
// match on host only.
func OriginHosts(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, o := range cleanStrings(allowed) {
		if o == "*" || !strings.Contains(o, "://") {
			out = append(out, o)
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		out = append(out, u.Host)
	}
	return out
}
