package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/scentmarket-backend/api/responses"
	pkgAuth "github.com/angelmondragon/scentmarket-backend/pkg/auth"
	"github.com/angelmondragon/scentmarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/scentmarket-backend/pkg/errors"
	"github.com/angelmondragon/scentmarket-backend/pkg/logger"
)

// Auth requires an "Authorization: Bearer <jwt>" header and seeds the request
// context and log fields with the caller's user id and role.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, r, logg, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, pkgAuth.ErrTokenExpired) {
					msg = "token expired"
				}
				unauthorized(w, r, logg, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			userID, role := claims.UserID.String(), string(claims.Role)
			ctx := WithRole(WithUserID(r.Context(), userID), role)
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, userID), role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the credentials of a Bearer authorization header. The
// scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	responses.WriteError(r.Context(), logg, w, err)
}
