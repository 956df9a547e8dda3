package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/genericchat/backend/internal/domain"
)

// TokenService wraps JWT creation and validation. The token subject is the
// account's canonical key.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		expiresIn: expiresIn,
	}
}

// CreateForAccount creates a JWT for the given account key using the default TTL.
func (t *TokenService) CreateForAccount(key domain.CanonicalKey) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": string(key),
		"iat": now.Unix(),
		"exp": now.Add(t.expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse validates a token and returns the account key it was issued for.
func (t *TokenService) Parse(tokenStr string) (domain.CanonicalKey, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrSignatureInvalid
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", jwt.ErrTokenMalformed
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", jwt.ErrTokenInvalidSubject
	}
	return domain.CanonicalKey(sub), nil
}
