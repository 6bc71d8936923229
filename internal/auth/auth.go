// Package auth is the admin boundary for the authoring surface.
//
// Session mechanics live outside this server; all it answers is
// "is this caller authorized", from an admin identity configured in
// the environment: an email plus a bcrypt hash of the password.
package auth

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// Admin holds the configured authoring identity. PasswordHash is a
// bcrypt hash, never the plaintext.
type Admin struct {
	Email        string
	PasswordHash string

	// OnFailure is called on every rejected request, used for
	// incrementing prometheus counters.
	OnFailure func()
}

// Enabled reports whether an admin identity is configured at all.
// With no identity, the authoring surface rejects everything.
func (a Admin) Enabled() bool {
	return a.Email != "" && a.PasswordHash != ""
}

// Authorize checks a presented email and password against the
// configured identity. Constant-time on the email; bcrypt compare on
// the password.
func (a Admin) Authorize(email, password string) bool {
	if !a.Enabled() {
		return false
	}
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(a.Email)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
	return emailOK && passOK
}

// Middleware guards a handler with HTTP basic auth against the admin
// identity. 401 with a challenge on missing or wrong credentials.
func (a Admin) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, password, ok := r.BasicAuth()
		if !ok || !a.Authorize(email, password) {
			if a.OnFailure != nil {
				a.OnFailure()
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="studio", charset="UTF-8"`)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
