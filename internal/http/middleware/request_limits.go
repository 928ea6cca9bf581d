package middleware

import (
	"errors"
	"net/http"

	"github.com/tendant/tenant-invite/internal/httputil"
)

// RequestSizeLimit creates middleware that limits the maximum request body size.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteDecodeError answers a failed request body decode: 413 when the body
// exceeded the size limit, 400 otherwise.
func WriteDecodeError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		httputil.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	httputil.Error(w, http.StatusBadRequest, "invalid request body")
}
