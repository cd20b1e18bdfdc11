package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// OriginPolicy decides which browser origins may call the API and open
// the WebSocket. Browser extensions and localhost are always allowed.
type OriginPolicy struct {
	allowAll bool
	exact    map[string]bool
}

// NewOriginPolicy builds a policy from extra allowed origins. "*" allows
// every origin.
func NewOriginPolicy(extra []string) *OriginPolicy {
	p := &OriginPolicy{exact: make(map[string]bool)}
	for _, o := range extra {
		o = strings.TrimSpace(o)
		switch o {
		case "":
		case "*":
			p.allowAll = true
		default:
			p.exact[strings.TrimSuffix(o, "/")] = true
		}
	}
	return p
}

// Allowed reports whether origin may connect. Requests without an Origin
// header come from non-browser clients and are allowed.
func (p *OriginPolicy) Allowed(origin string) bool {
	if origin == "" || p.allowAll {
		return true
	}
	if strings.HasPrefix(origin, "chrome-extension://") ||
		strings.HasPrefix(origin, "extension://") ||
		origin == "http://localhost" ||
		strings.HasPrefix(origin, "http://localhost:") {
		return true
	}
	return p.exact[origin]
}

// CheckOrigin is a websocket.Upgrader origin checker.
func (p *OriginPolicy) CheckOrigin(r *http.Request) bool {
	return p.Allowed(r.Header.Get("Origin"))
}

// CORS returns a CORS middleware enforcing the policy.
func (p *OriginPolicy) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && p.Allowed(origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Authorization, X-Requested-With")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			if origin != "" && !p.Allowed(origin) {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
