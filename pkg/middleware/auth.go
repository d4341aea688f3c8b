package middleware

import (
	"crypto/subtle"
	"net/http"

	"campuspay/pkg/hash"
)

// BasicAuth protects a handler with a single username and a bcrypt password hash.
// An empty hash rejects every request.
func BasicAuth(username, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)

			user, password, ok := r.BasicAuth()
			if !ok || passwordHash == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			// Always run bcrypt so a wrong username costs the same as a wrong password.
			passOK := hash.CheckPassword(passwordHash, password)
			if !userOK || !passOK {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
