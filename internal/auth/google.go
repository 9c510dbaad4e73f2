package auth

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

var ErrEmailNotVerified = errors.New("google account email is not verified")

// IDTokenVerifier checks an ID token issued by the sign-in provider and
// returns the identity it asserts.
type IDTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (Identity, error)
}

// GoogleVerifier validates Google-signed ID tokens for one OAuth client.
type GoogleVerifier struct {
	audience string
	validate func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

// NewGoogleVerifier returns a verifier accepting tokens minted for clientID.
func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{audience: clientID, validate: idtoken.Validate}
}

// Verify checks signature, audience and expiry, then extracts the profile.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (Identity, error) {
	payload, err := v.validate(ctx, idToken, v.audience)
	if err != nil {
		return Identity{}, fmt.Errorf("validate id token: %w", err)
	}
	return identityFromClaims(payload.Claims)
}

func identityFromClaims(claims map[string]interface{}) (Identity, error) {
	email, _ := claims["email"].(string)
	if email == "" {
		return Identity{}, errors.New("id token carries no email")
	}
	if verified, ok := claims["email_verified"].(bool); ok && !verified {
		return Identity{}, ErrEmailNotVerified
	}
	picture, _ := claims["picture"].(string)
	name, _ := claims["name"].(string)
	return Identity{Email: email, PhotoURL: picture, Name: name}, nil
}
