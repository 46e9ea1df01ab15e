package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
)

// Principal is the authenticated caller Auth attaches to the request.
type Principal struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, userID uuid.UUID, role enums.ActorRole) context.Context {
	return context.WithValue(ctx, principalKey{}, Principal{UserID: userID, Role: role})
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != uuid.Nil
}

// UserIDFromContext is "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID.String()
	}
	return ""
}

func UserUUIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	p, ok := PrincipalFromContext(ctx)
	return p.UserID, ok
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}
