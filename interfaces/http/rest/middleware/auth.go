package middleware

import (
	"net"
	"net/http"
	"strings"

	"carechat/domain/core/valueobjects"
	"carechat/pkg/auth"
	pkgerrors "carechat/pkg/errors"

	"go.uber.org/zap"
)

// Headers set by the Lambda entrypoint after API Gateway validated the
// caller's JWT
const (
	HeaderGatewayAuthorized = "X-API-Gateway-Authorized"
	HeaderUserID            = "X-User-ID"
	HeaderUserEmail         = "X-User-Email"
)

// OptionalIdentity authenticates callers that present a bearer token and lets
// everyone else through as a guest. A token that is present but invalid is
// rejected. validator may be nil when no JWT secret is configured; bearer
// tokens are then ignored.
func OptionalIdentity(validator *auth.JWTValidator, errs *pkgerrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Pre-authorized by API Gateway
			if r.Header.Get(HeaderGatewayAuthorized) == "true" {
				if userID := r.Header.Get(HeaderUserID); userID != "" {
					ctx := auth.SetUserInContext(r.Context(), &auth.UserContext{
						UserID: userID,
						Email:  r.Header.Get(HeaderUserEmail),
					})
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			token := extractToken(r)
			if token == "" || validator == nil {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.Debug("Rejected bearer token",
					zap.Error(err),
					zap.String("path", r.URL.Path),
				)
				message := "Invalid token"
				switch err {
				case auth.ErrExpiredToken:
					message = "Token has expired"
				case auth.ErrInvalidSignature:
					message = "Invalid token signature"
				}
				errs.Handle(w, r, pkgerrors.NewUnauthorizedError(message))
				return
			}

			ctx := auth.SetUserInContext(r.Context(), &auth.UserContext{
				UserID: claims.UserID,
				Email:  claims.Email,
				Roles:  claims.Roles,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// VerifiedIdentity returns the authenticated identity of the request, or the
// guest identity when the caller did not authenticate
func VerifiedIdentity(r *http.Request) valueobjects.Identity {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		return valueobjects.Guest()
	}
	return valueobjects.NewIdentity(user.UserID)
}

// RateLimit limits requests per verified identity, or per client IP for
// guests. Limiter errors fail open.
func RateLimit(limiter auth.RateLimiter, limit int, window string, errs *pkgerrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if identity := VerifiedIdentity(r); !identity.IsGuest() {
				key = "user:" + identity.String()
			}

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("Rate limiter error", zap.Error(err))
			}
			if !allowed {
				errs.Handle(w, r, pkgerrors.NewRateLimitError(limit, window))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken extracts the JWT from the Authorization header, or from the
// token query parameter for WebSocket upgrades where browsers cannot set
// headers
func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

// clientIP returns the caller address. chi's RealIP middleware has already
// rewritten RemoteAddr from the forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
