// Package auth issues and verifies the JWTs carrying per-resource permission
// scopes, and checks them against resource protection settings.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

// Scope carries the per-lexicon permission map inside the token payload:
// resource id to level name ("read", "write", "admin").
type Scope struct {
	Lexica map[string]string `json:"lexica,omitempty"`
}

// Claims is the token payload: standard registered claims plus the
// permission scope.
type Claims struct {
	jwt.RegisteredClaims
	Scope Scope `json:"scope,omitempty"`
}

// GenerateToken signs an HS256 token for a user with the given per-resource
// permissions.
func GenerateToken(user *domain.User, secretKey []byte, validityDuration time.Duration) (string, error) {
	lexica := make(map[string]string, len(user.Permissions))
	for resourceID, level := range user.Permissions {
		lexica[resourceID] = level.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Identifier,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Scope: Scope{Lexica: lexica},
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetUserFromToken verifies a token and reconstructs the user it describes.
func GetUserFromToken(tokenString string, secretKey []byte) (*domain.User, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	permissions := make(map[string]domain.PermissionLevel, len(claims.Scope.Lexica))
	for resourceID, level := range claims.Scope.Lexica {
		permissions[resourceID] = domain.ParsePermissionLevel(level)
	}

	return &domain.User{
		Identifier:  claims.Subject,
		Permissions: permissions,
	}, nil
}
