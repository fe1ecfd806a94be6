package httpapi

import "net/http"

// requireAPIKey gates administrative endpoints behind cfg.APIKey
// (LICENSED_API_KEY, see config.Load), checked via the X-Api-Key header or
// an api_key query parameter — the latter so the WebSocket feed upgrade
// (which browsers cannot attach custom headers to) can still authenticate,
// mirroring the teacher's own token-via-query-param exception for its /ws
// upgrade route. An empty key disables the check entirely (useful for local
// development).
func requireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get("X-Api-Key")
			if got == "" {
				got = r.URL.Query().Get("api_key")
			}
			if got != key {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
