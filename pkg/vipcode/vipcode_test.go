package vipcode

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy source down") }

func TestGeneratorPrefixesAndLength(t *testing.T) {
	g := New()

	digital, err := g.Digital()
	require.NoError(t, err)
	physical, err := g.Physical()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(digital, DigitalPrefix))
	assert.True(t, strings.HasPrefix(physical, PhysicalPrefix))
	assert.Len(t, digital, len(DigitalPrefix)+28)
	assert.Len(t, physical, len(PhysicalPrefix)+28)

	kind, ok := KindOf(digital)
	assert.True(t, ok)
	assert.Equal(t, KindDigital, kind)
	kind, ok = KindOf(physical)
	assert.True(t, ok)
	assert.Equal(t, KindPhysical, kind)
}

func TestGeneratorUniqueness(t *testing.T) {
	g := New()
	seen := make(map[string]struct{}, 2000)
	for i := 0; i < 1000; i++ {
		for _, kind := range []Kind{KindDigital, KindPhysical} {
			code, err := g.Issue(kind)
			require.NoError(t, err)
			_, dup := seen[code]
			require.False(t, dup, "duplicate code %s", code)
			seen[code] = struct{}{}
		}
	}
}

func TestGeneratorIsDeterministicForAReader(t *testing.T) {
	entropy := bytes.Repeat([]byte{0x5a}, entropyBytes*2)
	a := &Generator{Rand: bytes.NewReader(entropy)}
	b := &Generator{Rand: bytes.NewReader(entropy)}

	first, err := a.Digital()
	require.NoError(t, err)
	second, err := b.Digital()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGeneratorPropagatesReaderErrors(t *testing.T) {
	g := &Generator{Rand: failingReader{}}
	_, err := g.Digital()
	assert.Error(t, err)
}

func TestZeroGeneratorUsesCryptoRand(t *testing.T) {
	var g Generator
	code, err := g.Physical()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, PhysicalPrefix))
}

func TestKindOfRejectsForeignInput(t *testing.T) {
	for _, in := range []string{"", "VIP-", "VPF-", "ABC-123", "vip-abc"} {
		_, ok := KindOf(in)
		assert.False(t, ok, in)
	}
}

func TestNormalizeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		code, err := New().Issue(Kind(rapid.SampledFrom([]string{string(KindDigital), string(KindPhysical)}).Draw(t, "kind")))
		if err != nil {
			t.Fatal(err)
		}
		pad := rapid.StringMatching(`[ \t]{0,3}`)
		scanned := pad.Draw(t, "lead") + strings.ToLower(code) + pad.Draw(t, "trail")

		got := Normalize(scanned)
		if got != code {
			t.Fatalf("Normalize(%q) = %q, want %q", scanned, got, code)
		}
		if Normalize(got) != got {
			t.Fatalf("Normalize is not idempotent on %q", got)
		}
	})
}
