package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/afonso-rickman/newdelivery/api/responses"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
)

const maxRequestIDLen = 64

// RequestID accepts a caller supplied X-Request-Id when it is short and
// printable ASCII, otherwise mints a fresh uuid. The id is echoed on the
// response and attached to every log line of the request.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(responses.RequestIDHeader)
			if !validRequestID(reqID) {
				reqID = uuid.NewString()
			}
			w.Header().Set(responses.RequestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
