package auth

import (
	"context"
	"slices"

	"go.uber.org/zap"
)

type userKey struct{}

// User is the caller of the admin API as established by the authenticator.
type User struct {
	// Subject is the stable identity provider id, Username is for display.
	Subject  string
	Username string
	Email    string
	Roles    []string
}

func (u User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

func NewUserContext(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}

// MustHaveUser is for handlers mounted behind an Authenticator.
func MustHaveUser(ctx context.Context) User {
	u, ok := UserFromContext(ctx)
	if !ok {
		zap.S().Named("auth").Panic("no user in request context")
	}
	return u
}
