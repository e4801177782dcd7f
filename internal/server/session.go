package server

import (
	"context"
	"net/http"

	"coachreach/internal/models"
)

type sessionKey struct{}

// sessionFromHeaders reads the acting user from the X-Actor-ID and
// X-Actor-Role headers. Authentication happens upstream; these headers are
// the identity the gateway already verified.
func sessionFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := models.Session{
			ActorID: r.Header.Get("X-Actor-ID"),
			Role:    r.Header.Get("X-Actor-Role"),
		}
		if session.ActorID == "" {
			session.ActorID = "anonymous"
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFrom returns the session stored by the middleware.
func SessionFrom(ctx context.Context) models.Session {
	if session, ok := ctx.Value(sessionKey{}).(models.Session); ok {
		return session
	}
	return models.Session{ActorID: "anonymous"}
}
