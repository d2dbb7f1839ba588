// Package middleware holds the HTTP middleware chain of the API server.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	apperrors "github.com/3leaps/gojobgraph/internal/errors"
)

// ErrorResponse is the body written for failures raised here.
type ErrorResponse = apperrors.HTTPErrorResponse

var logger = zap.NewNop()

// SetLogger sets the logger used to report panics and requests.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// Recovery turns a handler panic into a 500 response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			requestID := r.Header.Get(apperrors.RequestIDHeader)
			logger.Error("Recovered from handler panic",
				zap.Any("panic", rec),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestID),
				zap.ByteString("stack", debug.Stack()))

			e := apperrors.New(http.StatusInternalServerError, apperrors.CodeInternal, fmt.Sprintf("panic: %v", rec))
			writeErrorResponse(w, requestID, e)
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is an alias for Recovery.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

func writeErrorResponse(w http.ResponseWriter, requestID string, e *apperrors.Error) {
	apperrors.Write(w, requestID, e)
}
