package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"filescdn/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the user identity inside a signed bearer token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string   `json:"uid"`
	Name   string   `json:"name,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

// GenerateToken signs an HS256 token for the user.
func GenerateToken(u model.User, secretKey []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		UserID: u.ID,
		Name:   u.Name,
		Roles:  u.Roles,
	})

	return token.SignedString(secretKey)
}

// ParseToken validates the token and returns the user it was issued for.
func ParseToken(tokenString string, secretKey []byte) (*model.User, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return &model.User{ID: claims.UserID, Name: claims.Name, Roles: claims.Roles}, nil
}
