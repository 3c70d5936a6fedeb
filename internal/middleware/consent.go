package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"uptain-sync/internal/consent"
)

type consentKey struct{}

// TrackingConsent parses the Tracking-Consent header into the request
// context. Malformed headers are logged and ignored; handlers then fall back
// to the request body.
func TrackingConsent(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(consent.HeaderName)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			h, err := consent.ParseHeader(raw)
			if err != nil {
				logger.Debug("ignoring malformed consent header",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), consentKey{}, h)))
		})
	}
}

// GetConsentHeader returns the parsed Tracking-Consent header, or nil.
func GetConsentHeader(ctx context.Context) *consent.Header {
	h, _ := ctx.Value(consentKey{}).(*consent.Header)
	return h
}
