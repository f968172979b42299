package config

import (
	"strings"

	"go.uber.org/zap"
)

// ProductionWarnings returns the list of insecure settings detected in the
// current configuration. The checks only matter for production deployments;
// callers should gate on IsProduction.
func (c *Config) ProductionWarnings() []string {
	warnings := []string{}

	if strings.Contains(c.DatabaseURL, "scimtool_secret") {
		warnings = append(warnings, "database_url uses the default development password")
	}
	if strings.Contains(c.DatabaseURL, "sslmode=disable") {
		warnings = append(warnings, "database_url disables TLS (sslmode=disable)")
	}
	if c.JWTSecret == "" {
		warnings = append(warnings, "jwt_secret is empty; only the legacy shared secret protects the endpoint")
	} else if len(c.JWTSecret) < 32 {
		warnings = append(warnings, "jwt_secret is shorter than 32 characters")
	}
	if c.SharedSecret != "" && len(c.SharedSecret) < 16 {
		warnings = append(warnings, "shared_secret is shorter than 16 characters")
	}
	if c.CORSAllowedOrigins == "*" {
		warnings = append(warnings, "cors_allowed_origins allows any origin")
	}
	if !c.EnableRateLimit {
		warnings = append(warnings, "rate limiting is disabled")
	}

	return warnings
}

// LogSecurityWarnings logs actionable security warnings when running in
// production with insecure defaults. Call this at service startup after
// configuration is loaded.
func (c *Config) LogSecurityWarnings(log *zap.Logger) {
	if !c.IsProduction() {
		return
	}

	warnings := c.ProductionWarnings()

	for _, w := range warnings {
		log.Warn("SECURITY", zap.String("warning", w))
	}

	if len(warnings) > 0 {
		log.Warn("SECURITY: production deployment has insecure configuration",
			zap.Int("warning_count", len(warnings)))
	}
}
