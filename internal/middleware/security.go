// security.go attaches protective headers to every response. Secrelo serves
// JSON to programmatic clients only, so the profile is deny-everything:
// responses must never be framed, sniffed, or cached, since list and envelope
// payloads carry ciphertext and sealed key material that has no business in a
// shared cache.
package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig controls the protective headers attached to responses.
// Zero or empty fields omit their header.
type SecurityHeadersConfig struct {
	// HSTSMaxAge is the Strict-Transport-Security max-age in seconds.
	HSTSMaxAge int
	// HSTSIncludeSubdomains appends includeSubDomains to the HSTS directive.
	HSTSIncludeSubdomains bool
	// FrameOptions is the X-Frame-Options value.
	FrameOptions string
	// ContentSecurityPolicy is the Content-Security-Policy value.
	ContentSecurityPolicy string
	// ReferrerPolicy is the Referrer-Policy value.
	ReferrerPolicy string
	// NoStore adds Cache-Control: no-store so proxies never retain bodies.
	NoStore bool
}

// APISecurityHeadersConfig is the profile served on every endpoint. There is
// no browser-facing surface, so the CSP denies all sources outright and
// response caching is disabled across the board.
func APISecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		FrameOptions:          "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
		NoStore:               true,
	}
}

// SecurityHeadersMiddleware writes the configured headers before the handler
// runs. X-Content-Type-Options and the cross-origin isolation headers are not
// configurable: no deployment of this service should relax them.
func SecurityHeadersMiddleware(cfg SecurityHeadersConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.HSTSMaxAge > 0 {
			v := "max-age=" + strconv.Itoa(cfg.HSTSMaxAge)
			if cfg.HSTSIncludeSubdomains {
				v += "; includeSubDomains"
			}
			c.Header("Strict-Transport-Security", v)
		}
		if cfg.FrameOptions != "" {
			c.Header("X-Frame-Options", cfg.FrameOptions)
		}
		if cfg.ContentSecurityPolicy != "" {
			c.Header("Content-Security-Policy", cfg.ContentSecurityPolicy)
		}
		if cfg.ReferrerPolicy != "" {
			c.Header("Referrer-Policy", cfg.ReferrerPolicy)
		}
		if cfg.NoStore {
			c.Header("Cache-Control", "no-store")
			c.Header("Pragma", "no-cache")
		}

		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")
		c.Header("Cross-Origin-Resource-Policy", "same-origin")

		c.Next()
	}
}
