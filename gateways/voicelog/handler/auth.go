package handler

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/xilidan/voicelog/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// Credentials is the single review account. When PasswordHash is set it is a
// bcrypt hash and Password is ignored.
type Credentials struct {
	Username     string
	Password     string
	PasswordHash string
}

func (c Credentials) match(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1

	var passOK bool
	if c.PasswordHash != "" {
		passOK = bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	}

	return userOK && passOK
}

// BasicAuth rejects requests without the review credentials with 401 and a
// Basic challenge.
func BasicAuth(realm string, creds Credentials) func(http.Handler) http.Handler {
	challenge := fmt.Sprintf(`Basic realm="%s", charset="UTF-8"`, realm)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok || !creds.match(username, password) {
				logger.FromContext(r.Context()).Info("review authentication failed", "has_credentials", ok)
				w.Header().Set("WWW-Authenticate", challenge)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
