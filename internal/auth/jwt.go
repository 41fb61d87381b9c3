package auth

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the identity attached to backend calls.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"` // "senior" or "family"
	jwt.RegisteredClaims
}

const defaultSecret = "companion-dev-secret"

func secret() []byte {
	if s := os.Getenv("COMPANION_JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte(defaultSecret)
}

// GenerateSeniorToken mints the bearer token the senior app presents on
// the websocket handshake and schedule polls.
func GenerateSeniorToken(userID string) (string, error) {
	claims := &Claims{
		UserID: userID,
		Role:   "senior",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret())
}

// ValidateToken parses and verifies a token, returning its claims.
func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret(), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
