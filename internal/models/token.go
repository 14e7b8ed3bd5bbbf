package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the payload embedded in access tokens.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	CompanyID string   `json:"company_id"`
	Role      UserRole `json:"role"`
	jwt.RegisteredClaims
}

// LoginRequest carries credential payloads.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued token and user summary.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	User        *User  `json:"user"`
}
