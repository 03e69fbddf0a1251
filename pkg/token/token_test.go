package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/clientevip/domain"
)

func TestSignAndParseRoundTrip(t *testing.T) {
	issuer, err := NewIssuer("secret", "clientevip", time.Hour)
	require.NoError(t, err)

	p := domain.Principal{ID: "acc-1", Role: domain.RoleParceiro, PartnerID: "partner-9"}
	signed, expires, err := issuer.Sign(p)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := issuer.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, p, claims.Principal())
}

func TestParseRejectsForeignSecret(t *testing.T) {
	a, _ := NewIssuer("secret-a", "clientevip", time.Hour)
	b, _ := NewIssuer("secret-b", "clientevip", time.Hour)

	signed, _, err := a.Sign(domain.Principal{ID: "acc-1", Role: domain.RoleAdmin})
	require.NoError(t, err)

	_, err = b.Parse(signed)
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	issuer, _ := NewIssuer("secret", "clientevip", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	signed, _, err := issuer.Sign(domain.Principal{ID: "acc-1", Role: domain.RoleAdmin})
	require.NoError(t, err)

	_, err = issuer.Parse(signed)
	assert.Error(t, err)
}

func TestParseRejectsUnknownRole(t *testing.T) {
	issuer, _ := NewIssuer("secret", "clientevip", time.Hour)

	signed, _, err := issuer.Sign(domain.Principal{ID: "acc-1", Role: "superuser"})
	require.NoError(t, err)

	_, err = issuer.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	a, _ := NewIssuer("secret", "other", time.Hour)
	b, _ := NewIssuer("secret", "clientevip", time.Hour)

	signed, _, err := a.Sign(domain.Principal{ID: "acc-1", Role: domain.RoleAdmin})
	require.NoError(t, err)

	_, err = b.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer("", "clientevip", time.Hour)
	assert.ErrorIs(t, err, ErrEmptySecret)
}
