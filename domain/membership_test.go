package domain

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var t0 = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func yearLong() *Membership {
	return &Membership{
		ID:             "m-1",
		StoreID:        "store-a",
		DigitalCode:    "VIP-AAA",
		ActivationDate: t0,
		ValidUntil:     t0.AddDate(1, 0, 0),
	}
}

func urgency(s Status) int {
	switch s {
	case StatusActive:
		return 0
	case StatusExpiring:
		return 1
	case StatusExpired:
		return 2
	}
	return -1
}

func TestComputeStatusLifecycle(t *testing.T) {
	m := yearLong()
	window := DefaultExpiringWindow

	assert.Equal(t, StatusActive, ComputeStatus(m, t0.AddDate(0, 6, 0), window))
	assert.Equal(t, StatusExpiring, ComputeStatus(m, m.ValidUntil.Add(-10*24*time.Hour), window))
	assert.Equal(t, StatusExpiring, ComputeStatus(m, m.ValidUntil, window), "last instant is still valid")
	assert.Equal(t, StatusExpired, ComputeStatus(m, m.ValidUntil.Add(time.Nanosecond), window))
}

func TestComputeStatusIgnoresStoredStatus(t *testing.T) {
	m := yearLong()
	m.Status = StatusCancelled
	assert.Equal(t, StatusActive, ComputeStatus(m, t0.Add(time.Hour), DefaultExpiringWindow))
}

func TestStatusMonotonicWithoutRenewal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		term := time.Duration(rapid.Int64Range(int64(time.Hour), int64(3*365*24*time.Hour)).Draw(t, "term"))
		window := time.Duration(rapid.Int64Range(0, int64(90*24*time.Hour)).Draw(t, "window"))
		m := &Membership{ActivationDate: t0, ValidUntil: t0.Add(term)}

		a := rapid.Int64Range(0, int64(2*term)).Draw(t, "a")
		b := rapid.Int64Range(a, int64(2*term)+1).Draw(t, "b")
		earlier := ComputeStatus(m, t0.Add(time.Duration(a)), window)
		later := ComputeStatus(m, t0.Add(time.Duration(b)), window)
		if urgency(later) < urgency(earlier) {
			t.Fatalf("status regressed from %s to %s", earlier, later)
		}
	})
}

func TestCancelledOverridesEverything(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := yearLong()
		if rapid.Bool().Draw(t, "renewed") {
			r := t0.AddDate(0, 1, 0)
			m.RenewalDate = &r
		}
		cancelledAt := t0.Add(time.Duration(rapid.Int64Range(0, int64(365*24*time.Hour)).Draw(t, "cancel")))
		m.CancelledAt = &cancelledAt

		now := t0.Add(time.Duration(rapid.Int64Range(-int64(365*24*time.Hour), int64(3*365*24*time.Hour)).Draw(t, "now")))
		if got := ComputeStatus(m, now, DefaultExpiringWindow); got != StatusCancelled {
			t.Fatalf("status = %s, want cancelled", got)
		}
	})
}

func TestComputeStatusIsPure(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := yearLong()
		now := t0.Add(time.Duration(rapid.Int64Range(0, int64(2*365*24*time.Hour)).Draw(t, "now")))
		before := *m
		first := ComputeStatus(m, now, DefaultExpiringWindow)
		second := ComputeStatus(m, now, DefaultExpiringWindow)
		if first != second {
			t.Fatalf("ComputeStatus not deterministic: %s vs %s", first, second)
		}
		if !reflect.DeepEqual(*m, before) {
			t.Fatal("ComputeStatus mutated its input")
		}
	})
}

func TestRenewExtendsValidity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := yearLong()
		now := t0.Add(time.Duration(rapid.Int64Range(0, int64(2*365*24*time.Hour)).Draw(t, "now")))
		t2 := now.Add(time.Duration(rapid.Int64Range(1, int64(3*365*24*time.Hour)).Draw(t, "extension")))

		if err := m.Renew(t2, now, DefaultExpiringWindow); err != nil {
			t.Fatalf("renew: %v", err)
		}
		if !m.ValidUntil.Equal(t2) {
			t.Fatalf("validUntil = %s, want %s", m.ValidUntil, t2)
		}
		if got := ComputeStatus(m, now, DefaultExpiringWindow); got != StatusRenewed {
			t.Fatalf("status = %s, want renewed", got)
		}
	})
}

func TestRenewRejections(t *testing.T) {
	now := t0.AddDate(0, 3, 0)

	m := yearLong()
	err := m.Renew(now, now, DefaultExpiringWindow)
	assert.ErrorIs(t, err, ErrInvalidRenewal, "end equal to now")

	m = yearLong()
	err = m.Renew(now.Add(-time.Hour), now, DefaultExpiringWindow)
	assert.ErrorIs(t, err, ErrInvalidRenewal, "end in the past")

	m = yearLong()
	require.NoError(t, m.Cancel(now))
	err = m.Renew(now.AddDate(1, 0, 0), now, DefaultExpiringWindow)
	assert.ErrorIs(t, err, ErrInvalidRenewal, "cancelled")
	assert.Nil(t, m.RenewalDate)
}

func TestRenewedThenExpires(t *testing.T) {
	m := yearLong()
	renewAt := t0.AddDate(0, 11, 0)
	require.NoError(t, m.Renew(t0.AddDate(2, 0, 0), renewAt, DefaultExpiringWindow))

	assert.Equal(t, StatusRenewed, ComputeStatus(m, t0.AddDate(1, 6, 0), DefaultExpiringWindow))
	assert.Equal(t, StatusExpired, ComputeStatus(m, t0.AddDate(2, 0, 1), DefaultExpiringWindow))
}

func TestCancelIsTerminalAndReported(t *testing.T) {
	m := yearLong()
	now := t0.AddDate(0, 2, 0)

	require.NoError(t, m.Cancel(now))
	assert.Equal(t, StatusCancelled, m.Status)
	require.NotNil(t, m.CancelledAt)
	assert.Equal(t, now, *m.CancelledAt)

	err := m.Cancel(now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.Equal(t, now, *m.CancelledAt, "first cancellation time is kept")
	assert.Equal(t, StatusCancelled, ComputeStatus(m, now.AddDate(5, 0, 0), DefaultExpiringWindow))
}

func TestRefreshReportsChanges(t *testing.T) {
	m := yearLong()
	assert.True(t, m.Refresh(t0.Add(time.Hour), DefaultExpiringWindow))
	assert.Equal(t, StatusActive, m.Status)
	assert.False(t, m.Refresh(t0.Add(2*time.Hour), DefaultExpiringWindow))
	assert.True(t, m.Refresh(m.ValidUntil.Add(time.Hour), DefaultExpiringWindow))
	assert.Equal(t, StatusExpired, m.Status)
}

func TestEligibility(t *testing.T) {
	assert.True(t, StatusActive.Eligible())
	assert.True(t, StatusExpiring.Eligible())
	assert.True(t, StatusRenewed.Eligible())
	assert.False(t, StatusExpired.Eligible())
	assert.False(t, StatusCancelled.Eligible())
	assert.False(t, Status("bogus").Valid())
}

func TestHasCodeAndWindow(t *testing.T) {
	m := yearLong()
	m.PhysicalCode = "VPF-BBB"

	assert.True(t, m.HasCode("VIP-AAA"))
	assert.True(t, m.HasCode("VPF-BBB"))
	assert.False(t, m.HasCode(""))
	assert.False(t, m.HasCode("VIP-ZZZ"))

	assert.True(t, m.InWindow(t0))
	assert.False(t, m.InWindow(t0.Add(-time.Second)))
	assert.False(t, m.InWindow(m.ValidUntil.Add(time.Second)))
}

func TestValidateVehicle(t *testing.T) {
	now := t0
	ok := Vehicle{Brand: "Fiat", Model: "Pulse", Year: 2025, Plate: "ABC1D23", PurchaseDate: now.AddDate(0, 0, -1)}
	require.NoError(t, ValidateVehicle(&ok, now))

	next := ok
	next.Year = now.Year() + 1
	assert.NoError(t, ValidateVehicle(&next, now), "next model year is allowed")

	bad := Vehicle{Year: 1900, PurchaseDate: now.Add(time.Hour)}
	err := ValidateVehicle(&bad, now)
	require.Error(t, err)
	var dErr *Error
	require.True(t, errors.As(err, &dErr))
	assert.Equal(t, KindValidation, dErr.Kind)
	for _, field := range []string{"brand", "model", "plate", "year", "purchase_date"} {
		assert.Contains(t, dErr.Fields, field)
	}

	assert.ErrorIs(t, ValidateVehicle(nil, now), ErrValidation)
}
