package auth

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	userentity "github.com/sclinedc/edc-core/internal/user/entity"
)

// Claims is the session credential body: a time-boxed assertion of identity
// and role/study/site assignment. There is no server-side session store;
// validity is purely signature plus expiry, so a token cannot be revoked
// before it runs out.
type Claims struct {
	UserID   int64   `json:"userId"`
	Email    string  `json:"email"`
	RoleID   *int64  `json:"roleId,omitempty"`
	RoleName *string `json:"roleName,omitempty"`
	StudyID  *int64  `json:"studyId,omitempty"`
	SiteID   *int64  `json:"siteId,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenIssuer signs and parses session credentials with HS256.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer builds an issuer; ttl <= 0 falls back to 7 days.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TokenIssuerFromEnv reads JWT_SECRET and JWT_EXPIRES_DAYS.
func TokenIssuerFromEnv() (*TokenIssuer, error) {
	ttl := time.Duration(0)
	if v := os.Getenv("JWT_EXPIRES_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			ttl = time.Duration(days) * 24 * time.Hour
		}
	}
	return NewTokenIssuer(os.Getenv("JWT_SECRET"), ttl)
}

// Mint signs a session credential for the authenticated user projection.
func (i *TokenIssuer) Mint(u *userentity.Detail) (string, error) {
	now := i.now()
	claims := Claims{
		UserID:   u.UserID,
		Email:    u.EmailAddress,
		RoleID:   u.RoleID,
		RoleName: u.RoleName,
		StudyID:  u.StudyID,
		SiteID:   u.SiteID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(i.secret)
}

// Parse validates a token string, distinguishing expiry from other failures
// so the middleware can send 401 versus 403.
func (i *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !tok.Valid {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}
