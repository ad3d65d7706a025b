package http

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
)

// NewRouter mounts the websocket endpoint, the REST API and the health check.
func NewRouter(ws *WSHandler, rest *RESTHandler, corsOrigins string) http.Handler {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	router.HandlerFunc(http.MethodGet, "/ws", ws.ServeWS)
	rest.Register(router)
	return withCORS(router, corsOrigins)
}

// withCORS answers preflight requests and sets the allow-origin header.
// allowed is comma separated; "*" or empty allows every origin.
func withCORS(next http.Handler, allowed string) http.Handler {
	origins := map[string]bool{}
	allowAll := strings.TrimSpace(allowed) == "" || strings.TrimSpace(allowed) == "*"
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || origins[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
