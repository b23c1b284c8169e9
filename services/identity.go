package services

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity - результат проверки токена внешним провайдером идентичности
type Identity struct {
	UserID   string
	DeviceID string
}

// TokenDecoder - контракт провайдера идентичности. Ядро доверяет его вердикту
type TokenDecoder interface {
	Decode(token string) (Identity, error)
}

type identityClaims struct {
	DeviceID string `json:"deviceId"`
	jwt.RegisteredClaims
}

// JWTDecoder проверяет HS256 токены, выпущенные сервисом авторизации
type JWTDecoder struct {
	secret []byte
}

func NewJWTDecoder(secret string) *JWTDecoder {
	return &JWTDecoder{secret: []byte(secret)}
}

func (d *JWTDecoder) Decode(token string) (Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Identity{}, fmt.Errorf("empty token: %w", ErrUnauthorized)
	}

	claims := &identityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return d.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("invalid token: %w", ErrUnauthorized)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("token without subject: %w", ErrUnauthorized)
	}
	return Identity{UserID: claims.Subject, DeviceID: claims.DeviceID}, nil
}

// Sign выпускает токен. Нужен тестам и локальной разработке, в проде токены выдает auth сервис
func (d *JWTDecoder) Sign(userID, deviceID string) (string, error) {
	claims := identityClaims{
		DeviceID:         deviceID,
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.secret)
}
