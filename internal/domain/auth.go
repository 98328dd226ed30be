package domain

import "github.com/golang-jwt/jwt/v5"

type CustomClaims struct {
	UserID        string `json:"user_id"`
	PlatformAdmin bool   `json:"platform_admin"` // Оператор платформы (superuser)
	jwt.RegisteredClaims
}
