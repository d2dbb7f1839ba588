package middleware

import (
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/3leaps/gojobgraph/internal/errors"
)

// RequestID propagates X-Request-ID, generating one when absent. The id
// is set on the request so later handlers can read it from the header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(apperrors.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(apperrors.RequestIDHeader, id)
		}
		w.Header().Set(apperrors.RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
