package resolver

import (
	"os"
	"strings"
)

// DefaultDomain is the placeholder IdP domain used when IDP_DOMAIN is
// unset. It exists so development setups fail loudly at the IdP rather
// than panicking at startup.
const DefaultDomain = "dev-tenant.example-idp.com"

// Config holds the per-process resolution settings. The key-set and
// userinfo endpoints are derived from Domain by fixed convention; there is
// no discovery-document parsing.
type Config struct {
	// Domain is the IdP tenant domain, e.g. "tenant.example-idp.com".
	Domain string
}

// ConfigFromEnv reads configuration from the environment: IDP_DOMAIN,
// defaulting to DefaultDomain when unset or blank.
func ConfigFromEnv() Config {
	domain := strings.TrimSpace(os.Getenv("IDP_DOMAIN"))
	if domain == "" {
		domain = DefaultDomain
	}
	return Config{Domain: domain}
}
