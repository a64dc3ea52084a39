package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthService validates the HS256 bearer tokens issued by the platform's
// identity service. Tokens carry the acting user in "sub" and the tenant in
// "tenant"; every persisted record downstream is scoped by that tenant.
type AuthService struct {
	JWTSecret string
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{
		JWTSecret: secret,
	}
}

// Claims is the decoded identity attached to each request.
type Claims struct {
	UserID   int64
	TenantID int64
}

// GenerateToken signs a token for a user within a tenant. Used by tests and
// local tooling; production tokens come from the identity service.
func (a *AuthService) GenerateToken(userID, tenantID int64, expiry time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":    fmt.Sprintf("%d", userID),
		"tenant": fmt.Sprintf("%d", tenantID),
		"exp":    time.Now().Add(expiry).Unix(),
		"iat":    time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.JWTSecret))
}

// ValidateToken checks signature and expiry and extracts the identity claims.
func (a *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return nil, errors.New("invalid token: 'sub' claim missing or not a string")
	}
	tenant, ok := claims["tenant"].(string)
	if !ok {
		return nil, errors.New("invalid token: 'tenant' claim missing or not a string")
	}

	var out Claims
	if _, err := fmt.Sscanf(sub, "%d", &out.UserID); err != nil {
		return nil, fmt.Errorf("invalid token: bad 'sub' claim %q", sub)
	}
	if _, err := fmt.Sscanf(tenant, "%d", &out.TenantID); err != nil {
		return nil, fmt.Errorf("invalid token: bad 'tenant' claim %q", tenant)
	}
	return &out, nil
}
