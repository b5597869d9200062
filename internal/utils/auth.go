package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xelth-com/colocacion/internal/errs"
)

// Roles carried in the "role" claim
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// GenerateToken issues an access token for an actor
func GenerateToken(actorID, role, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"id":   actorID,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and validates a token
func ValidateToken(tokenString string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs.New("unexpected signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errs.New("invalid token")
}

// ActorFromClaims extracts actor id and role. Tokens without an id are rejected.
func ActorFromClaims(claims jwt.MapClaims) (string, string, error) {
	id, _ := claims["id"].(string)
	if id == "" {
		return "", "", errs.New("token has no actor id")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = RoleOperator
	}
	return id, role, nil
}
