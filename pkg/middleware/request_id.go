package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/statspub/publisher/pkg/requestid"
)

// RequestID reads the request id from the X-Request-Id header, falls back to
// the id chi generated, and finally generates one. The id is stored in the
// context through the requestid package and echoed back in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestid.Header)

		if requestID == "" {
			requestID = middleware.GetReqID(r.Context())
		}

		if requestID == "" {
			requestID = requestid.Generate()
		}

		w.Header().Set(requestid.Header, requestID)
		next.ServeHTTP(w, r.WithContext(requestid.ToContext(r.Context(), requestID)))
	})
}
