package cloudonix

import (
	"net/http"
	"strings"
)

// Verifier performs the advisory origin check on incoming webhooks.
//
// The provider does not sign deliveries today, so this is heuristic only:
// handlers log a warning when it fails and process the request anyway.
// Rejection here would drop real traffic on any provider header change.
type Verifier struct {
	// UserAgentToken is matched case-insensitively inside the User-Agent
	// header. Defaults to "cloudonix" when empty.
	UserAgentToken string
}

func (v Verifier) token() string {
	if v.UserAgentToken == "" {
		return "cloudonix"
	}
	return strings.ToLower(v.UserAgentToken)
}

// LooksAuthentic reports whether the request carries any marker of provider
// origin: a provider signature or request-id header, or the provider token
// in the User-Agent.
func (v Verifier) LooksAuthentic(r *http.Request) bool {
	if r.Header.Get("X-Cloudonix-Signature") != "" {
		return true
	}
	if r.Header.Get("X-Cloudonix-Request-Id") != "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.UserAgent()), v.token())
}
