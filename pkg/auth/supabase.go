package auth

import (
	"context"
	"fmt"
	"strings"

	supa "github.com/supabase-community/supabase-go"
)

// SupabaseVerifier asks Supabase Auth who owns the token. It is slower than
// local validation but honours revoked sessions.
type SupabaseVerifier struct {
	client *supa.Client
}

func NewSupabaseVerifier(client *supa.Client) *SupabaseVerifier {
	return &SupabaseVerifier{client: client}
}

// Verify implements Verifier.
func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrMissingToken
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	user, err := v.client.Auth.WithToken(token).GetUser()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims := &Claims{UserID: user.ID.String(), Email: user.Email, Role: user.Role}
	claims.Subject = claims.UserID
	return claims, nil
}
