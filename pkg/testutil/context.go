package testutil

import (
	"net/http"
	"time"

	"rightsledger/pkg/requestcontext"
)

// WithUserID sets the acting user, as the auth middleware would after a
// successful token check.
func WithUserID(req *http.Request, userID string) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithBearer sets an Authorization header for tests that run the full chain.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// WithTime pins the request-scoped clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
