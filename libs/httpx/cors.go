package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
// An origin entry may be "*", an exact origin, or a subdomain wildcard such as
// "https://*.example.com".
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// WithCORS adds CORS handling. With no allowed origins it is a no-op.
func WithCORS(cfg CORSPolicy) Middleware {
	origins := normalizeList(cfg.AllowedOrigins)
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	static := map[string]string{}
	if methods := strings.Join(normalizeList(cfg.AllowedMethods), ", "); methods != "" {
		static["Access-Control-Allow-Methods"] = methods
	}
	if headers := strings.Join(normalizeList(cfg.AllowedHeaders), ", "); headers != "" {
		static["Access-Control-Allow-Headers"] = headers
	}
	if secs := int(cfg.MaxAge.Seconds()); secs > 0 {
		static["Access-Control-Max-Age"] = strconv.Itoa(secs)
	}
	if cfg.AllowCredentials {
		static["Access-Control-Allow-Credentials"] = "true"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowOrigin, ok := matchOrigin(origin, origins, cfg.AllowCredentials)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowOrigin)
			for k, v := range static {
				h.Set(k, v)
			}
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func matchOrigin(origin string, allowed []string, allowCredentials bool) (string, bool) {
	for _, candidate := range allowed {
		switch {
		case candidate == "*":
			// Browsers reject "*" together with credentials, so echo the origin.
			if allowCredentials {
				return origin, true
			}
			return "*", true
		case strings.EqualFold(candidate, origin):
			return origin, true
		case strings.Contains(candidate, "://*."):
			scheme, suffix, _ := strings.Cut(candidate, "*")
			lower := strings.ToLower(origin)
			if strings.HasPrefix(lower, strings.ToLower(scheme)) && strings.HasSuffix(lower, strings.ToLower(suffix)) {
				return origin, true
			}
		}
	}
	return "", false
}
