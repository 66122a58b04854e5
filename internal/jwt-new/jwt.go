package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/linemk/usdt-shop/internal/domain/models"
)

// ClaimAdmin — признак оператора магазина в токене
const ClaimAdmin = "admin"

// NewToken генерирует JWT-токен для указанного пользователя с заданным временем жизни.
// Секрет передаётся из конфига (JWT_SECRET).
func NewToken(_ context.Context, user *models.User, ttl time.Duration, secret string, isAdmin bool) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is not set")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      fmt.Sprintf("%d", user.ID),
		"username": user.Username,
		ClaimAdmin: isAdmin,
		"exp":      now.Add(ttl).Unix(),
		"iat":      now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
