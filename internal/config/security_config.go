package config

import (
	"time"
)

// SecurityConfig holds HTTP-facing security settings
type SecurityConfig struct {
	// Rate limiting
	IPRateLimit         float64
	IPRateBurst         int
	RateLimitCleanupMin int

	// Secure headers
	HSTSMaxAge            time.Duration
	HSTSIncludeSubdomains bool
	CORSAllowedOrigins    []string
}

// DefaultSecurityConfig returns the default security configuration
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		// 10 requests per second per IP with bursts of 20
		IPRateLimit:         getEnvFloat("IP_RATE_LIMIT", 10),
		IPRateBurst:         getEnvInt("IP_RATE_BURST", 20),
		RateLimitCleanupMin: getEnvInt("RATE_LIMIT_CLEANUP_MIN", 5),

		HSTSMaxAge:            365 * 24 * time.Hour,
		HSTSIncludeSubdomains: true,
	}
}
