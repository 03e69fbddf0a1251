// Package token signs and verifies the HS256 access tokens carrying a Principal.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/fastygo/clientevip/domain"
)

var (
	ErrEmptySecret  = errors.New("jwt secret cannot be empty")
	ErrInvalidToken = errors.New("invalid token")
)

type Claims struct {
	Role      string `json:"role"`
	StoreID   string `json:"store_id,omitempty"`
	PartnerID string `json:"partner_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the caller encoded in the claims.
func (c *Claims) Principal() domain.Principal {
	return domain.Principal{
		ID:        c.Subject,
		Role:      domain.Role(c.Role),
		StoreID:   c.StoreID,
		PartnerID: c.PartnerID,
	}
}

type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Issuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Sign issues a token for p and returns it with its expiry.
func (i *Issuer) Sign(p domain.Principal) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	claims := &Claims{
		Role:      string(p.Role),
		StoreID:   p.StoreID,
		PartnerID: p.PartnerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Parse verifies signature, issuer and expiry and returns the claims.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if i.issuer != "" && !claims.VerifyIssuer(i.issuer, true) {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || !domain.Role(claims.Role).Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
