package session

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/mindhaven/relay/internal/models"
)

// Verifier checks bearer tokens minted by the platform's identity service.
// The relay only consumes identity; it never issues tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for HS256 tokens signed with secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify validates the token and returns the user ID from its subject.
func (v *Verifier) Verify(token string) (string, error) {
	if len(v.secret) == 0 {
		return "", &models.AuthError{Reason: "token verification not configured"}
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", &models.AuthError{Reason: "invalid token"}
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", &models.AuthError{Reason: "token missing subject"}
	}
	return sub, nil
}
