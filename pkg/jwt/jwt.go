package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the identity fields carried by an access token.
type Claims struct {
	UserID int64
	Email  string
	Role   string
}

func GenerateToken(secret string, c Claims, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": c.UserID,
		"email":   c.Email,
		"role":    c.Role,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	// JSON numbers decode as float64.
	id, ok := claims["user_id"].(float64)
	if !ok || id <= 0 {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)

	return &Claims{UserID: int64(id), Email: email, Role: role}, nil
}
