package driven

import "github.com/custodia-labs/sercha-social/internal/core/domain"

// AuthAdapter handles the cryptographic side of caller authentication.
type AuthAdapter interface {
	GenerateToken(claims *domain.TokenClaims) (string, error)
	ParseToken(token string) (*domain.TokenClaims, error)
}
