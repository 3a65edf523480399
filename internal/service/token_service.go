package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"rickshaw-auth/internal/domain"
)

// TokenCodec firma y valida tokens. La elección de algoritmo vive detrás de
// esta interfaz para poder cambiarla sin tocar los call sites.
type TokenCodec interface {
	SignAccess(user domain.User) (string, error)
	SignRefresh(userID string) (signed string, expiresAt time.Time, err error)
	ParseAccess(token string) (AccessClaims, error)
	ParseRefresh(token string) (RefreshClaims, error)
	AccessTTL() time.Duration
}

// AccessClaims viaja en el access token: identidad completa para autorizar
// requests sin ir a la base.
type AccessClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims viaja en el refresh token: solo el id del usuario.
type RefreshClaims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// HS256Codec implementa TokenCodec con HMAC-SHA256 y secretos separados para
// access y refresh.
type HS256Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
}

func NewHS256Codec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *HS256Codec {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &HS256Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		issuer:        "rickshaw-auth",
	}
}

func (c *HS256Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

func (c *HS256Codec) SignAccess(user domain.User) (string, error) {
	if len(c.accessSecret) == 0 {
		return "", ErrTokenInvalid
	}
	now := time.Now().UTC()
	claims := AccessClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.accessSecret)
}

func (c *HS256Codec) SignRefresh(userID string) (string, time.Time, error) {
	if len(c.refreshSecret) == 0 {
		return "", time.Time{}, ErrTokenInvalid
	}
	now := time.Now().UTC()
	expiresAt := now.Add(c.refreshTTL)
	claims := RefreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.refreshSecret)
	return signed, expiresAt, err
}

func (c *HS256Codec) ParseAccess(tokenString string) (AccessClaims, error) {
	var claims AccessClaims
	if err := c.parse(tokenString, c.accessSecret, &claims); err != nil {
		return AccessClaims{}, err
	}
	if !c.validSubject(claims.UserID, claims.Subject, claims.Issuer) {
		return AccessClaims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (c *HS256Codec) ParseRefresh(tokenString string) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.parse(tokenString, c.refreshSecret, &claims); err != nil {
		return RefreshClaims{}, err
	}
	if !c.validSubject(claims.UserID, claims.Subject, claims.Issuer) {
		return RefreshClaims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (c *HS256Codec) parse(tokenString string, secret []byte, claims jwt.Claims) error {
	if len(secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return ErrTokenInvalid
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	return nil
}

func (c *HS256Codec) validSubject(userID, subject, issuer string) bool {
	if strings.TrimSpace(userID) == "" || subject != userID {
		return false
	}
	return issuer == c.issuer
}
