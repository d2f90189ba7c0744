package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// WebhookAuthConfig is the per-provider authentication material for inbound
// gateway notifications: a shared-secret token and an optional source IP
// allow-list. An empty token disables the provider's webhook endpoint.
type WebhookAuthConfig struct {
	Tokens map[string]string
	CIDRs  map[string][]string
}

// WebhookAuth authenticates POST /webhooks/{provider} requests. The token is
// compared in constant time. When CIDRs are configured for the provider, the
// request must also originate from one of them.
func WebhookAuth(cfg WebhookAuthConfig, logger zerolog.Logger) func(http.Handler) http.Handler {
	allowNets := make(map[string][]*net.IPNet)
	for provider, cidrs := range cfg.CIDRs {
		for _, c := range cidrs {
			_, ipnet, err := net.ParseCIDR(c)
			if err != nil {
				logger.Warn().Str("provider", provider).Str("cidr", c).Msg("skipping unparseable webhook CIDR")
				continue
			}
			allowNets[provider] = append(allowNets[provider], ipnet)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provider := chi.URLParam(r, "provider")

			expected, ok := cfg.Tokens[provider]
			if !ok || expected == "" {
				logger.Warn().Str("provider", provider).Msg("webhook for provider without a configured token")
				w.WriteHeader(http.StatusNotFound)
				return
			}

			if subtle.ConstantTimeCompare([]byte(webhookToken(r)), []byte(expected)) != 1 {
				logger.Warn().Str("provider", provider).Msg("webhook token mismatch")
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			if nets := allowNets[provider]; len(nets) > 0 && !sourceAllowed(r, nets) {
				logger.Warn().Str("provider", provider).Str("remote", r.RemoteAddr).Msg("webhook from disallowed source")
				w.WriteHeader(http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func webhookToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-Webhook-Token")
}

func sourceAllowed(r *http.Request, nets []*net.IPNet) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
