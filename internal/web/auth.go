package web

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

const authRealm = `Basic realm="s3drive", charset="UTF-8"`

func (s *Server) requireAuth(next http.Handler) http.Handler {
	if !s.cfg.AuthEnabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			w.Header().Set("WWW-Authenticate", authRealm)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorize(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.Auth.Username)) == 1
	// bcrypt runs even when the username is wrong.
	passErr := bcrypt.CompareHashAndPassword([]byte(s.cfg.Auth.PasswordHash), []byte(pass))
	return userOK && passErr == nil
}
