package middleware

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/scentmarket-backend/pkg/errors"
)

// principal is the authenticated caller as seen by handlers.
type principal struct {
	userID string
	role   string
}

type principalKey struct{}

func principalFrom(ctx context.Context) principal {
	if ctx == nil {
		return principal{}
	}
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

func withPrincipal(ctx context.Context, update func(*principal)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	p := principalFrom(ctx)
	update(&p)
	return context.WithValue(ctx, principalKey{}, p)
}

func UserIDFromContext(ctx context.Context) string { return principalFrom(ctx).userID }

func RoleFromContext(ctx context.Context) string { return principalFrom(ctx).role }

func WithUserID(ctx context.Context, userID string) context.Context {
	return withPrincipal(ctx, func(p *principal) { p.userID = userID })
}

func WithRole(ctx context.Context, role string) context.Context {
	return withPrincipal(ctx, func(p *principal) { p.role = role })
}

// RequireUserID returns the caller's id or an UNAUTHORIZED error when the
// request did not pass through Auth.
func RequireUserID(ctx context.Context) (uuid.UUID, error) {
	raw := UserIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}
