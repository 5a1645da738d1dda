package server

import (
	"crypto/subtle"
	"net/http"
)

const headerAPIKey = "X-API-Key"

func (s *Server) validKey(key string) bool {
	if s.cfg.APIKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) == 1
}

// streamKey reads the credential of a websocket handshake from the header
// or, for clients that cannot set headers, the api_key query parameter.
func streamKey(r *http.Request) string {
	if k := r.Header.Get(headerAPIKey); k != "" {
		return k
	}
	return r.URL.Query().Get("api_key")
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.validKey(r.Header.Get(headerAPIKey)) {
			writeError(w, http.StatusUnauthorized, "Invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
