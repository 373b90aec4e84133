package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/interviewer/internal/model"
)

// tokenAuth checks bearer tokens against a bcrypt hash. The digest of the last
// accepted token is remembered so bcrypt runs once per distinct token, not on
// every request.
type tokenAuth struct {
	hash []byte

	mu       sync.Mutex
	accepted [sha256.Size]byte
	known    bool
}

func newTokenAuth(hash string) *tokenAuth {
	return &tokenAuth{hash: []byte(hash)}
}

// HashToken returns the bcrypt hash to configure as the API token hash.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (a *tokenAuth) verify(token string) bool {
	if token == "" {
		return false
	}
	sum := sha256.Sum256([]byte(token))

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.known && subtle.ConstantTimeCompare(sum[:], a.accepted[:]) == 1 {
		return true
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(token)); err != nil {
		return false
	}
	a.accepted = sum
	a.known = true
	return true
}

func (a *tokenAuth) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || !a.verify(token) {
			slog.Warn("rejected request with invalid API token", "path", r.URL.Path, "remote", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Bearer realm="interviewer"`)
			writeJSON(w, http.StatusUnauthorized, model.ErrorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
