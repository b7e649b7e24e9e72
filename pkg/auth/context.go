package auth

import "context"

// User is the caller of an editor request.
type User struct {
	ID    string
	Email string
	Role  string
}

// UserFromClaims copies the identity fields of verified claims.
func UserFromClaims(c *Claims) User {
	return User{ID: c.UserID, Email: c.Email, Role: c.Role}
}

type userKey struct{}

// WithUser returns a copy of ctx that carries user.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userKey{}).(User)
	return user, ok
}

// UserID returns the caller's id, or "" for an anonymous request.
func UserID(ctx context.Context) string {
	user, _ := UserFromContext(ctx)
	return user.ID
}
