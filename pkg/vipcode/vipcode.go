// Package vipcode issues the identifiers printed in VIP card QR codes.
package vipcode

import (
	"crypto/rand"
	"encoding/base32"
	"io"
	"strings"
)

// Kind tells digital codes from physical-card codes.
type Kind string

const (
	KindDigital  Kind = "digital"
	KindPhysical Kind = "physical"

	DigitalPrefix  = "VIP-"
	PhysicalPrefix = "VPF-"

	entropyBytes = 17 // 136 bits, 28 base32 characters with padding stripped
)

// crockford base32 alphabet: no I, L, O, U.
var encoding = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// Generator produces random codes. The zero value reads from crypto/rand.
type Generator struct {
	Rand io.Reader
}

// New returns a generator backed by crypto/rand.
func New() *Generator {
	return &Generator{Rand: rand.Reader}
}

// Digital returns a fresh digital code.
func (g *Generator) Digital() (string, error) {
	return g.generate(DigitalPrefix)
}

// Physical returns a fresh physical-card code.
func (g *Generator) Physical() (string, error) {
	return g.generate(PhysicalPrefix)
}

// Issue returns a fresh code of the given kind.
func (g *Generator) Issue(kind Kind) (string, error) {
	if kind == KindPhysical {
		return g.Physical()
	}
	return g.Digital()
}

func (g *Generator) generate(prefix string) (string, error) {
	src := g.Rand
	if src == nil {
		src = rand.Reader
	}
	buf := make([]byte, entropyBytes)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", err
	}
	return prefix + encoding.EncodeToString(buf), nil
}

// Normalize canonicalises scanned input: surrounding space is dropped and letters
// are upper-cased.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// KindOf classifies a normalized code by prefix. ok is false for foreign strings.
func KindOf(code string) (Kind, bool) {
	switch {
	case strings.HasPrefix(code, DigitalPrefix) && len(code) > len(DigitalPrefix):
		return KindDigital, true
	case strings.HasPrefix(code, PhysicalPrefix) && len(code) > len(PhysicalPrefix):
		return KindPhysical, true
	}
	return "", false
}
