package model

import "github.com/golang-jwt/jwt"

// UserClaims are the JWT claims issued by the host application.
type UserClaims struct {
	jwt.StandardClaims
	UserName string `json:"user_name"`
}

// UserID prefers the subject, falling back to the issuer for older tokens.
func (c UserClaims) UserID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.Issuer
}
