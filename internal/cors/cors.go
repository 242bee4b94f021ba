// Package cors applies the per-application origin allow-lists for web SDK
// requests.
package cors

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xray-tech/xorc-gateway/internal/config"
	"github.com/xray-tech/xorc-gateway/internal/event"
)

// Policy holds the static preflight headers and the per-app origin sets.
type Policy struct {
	allowedMethods string
	allowedHeaders string
	allowedOrigins map[string]map[string]struct{}
}

// New builds the policy from configuration.
func New(cfg config.CORS, origins []config.Origin) *Policy {
	allowed := make(map[string]map[string]struct{}, len(origins))
	for _, origin := range origins {
		set := make(map[string]struct{}, len(origin.Allowed))
		for _, o := range origin.Allowed {
			set[o] = struct{}{}
		}
		allowed[origin.AppID] = set
	}

	return &Policy{
		allowedMethods: cfg.AllowedMethods,
		allowedHeaders: cfg.AllowedHeaders,
		allowedOrigins: allowed,
	}
}

// ValidOrigin reports whether the origin is allow-listed for the app. An
// absent origin is never valid.
func (p *Policy) ValidOrigin(appID, origin string) bool {
	if origin == "" {
		return false
	}
	_, ok := p.allowedOrigins[appID][origin]
	return ok
}

// Apply sets the CORS response headers for a web request from an allowed
// origin. Non-web platforms and unknown origins get no headers.
func (p *Policy) Apply(header http.Header, evctx *event.Context) {
	if evctx.Platform != event.PlatformWeb || !p.ValidOrigin(evctx.AppID, evctx.Origin) {
		return
	}
	header.Set(echo.HeaderAccessControlAllowOrigin, evctx.Origin)
	header.Set(echo.HeaderAccessControlAllowMethods, p.allowedMethods)
	header.Set(echo.HeaderAccessControlAllowHeaders, p.allowedHeaders)
}

// ApplyWildcard sets the permissive preflight headers. Browsers send the
// OPTIONS probe before any app identity is known, so it accepts everyone.
func (p *Policy) ApplyWildcard(header http.Header) {
	header.Set(echo.HeaderAccessControlAllowOrigin, "*")
	header.Set(echo.HeaderAccessControlAllowMethods, p.allowedMethods)
	header.Set(echo.HeaderAccessControlAllowHeaders, p.allowedHeaders)
}
