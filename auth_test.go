package main

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainForClaims(t *testing.T) {
	tests := []struct {
		email, hd, dom string
		want           string
	}{
		{"alice@example.com", "", "", "example.com"},
		{"alice@example.com", "corp.example", "", "corp.example"}, // hd wins
		{"alice@example.com", "", "other.example", "other.example"},
		{"no-at-sign", "", "", ""},
		{"", "", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, domainForClaims(tt.email, tt.hd, tt.dom))
	}
}

func TestRandHex(t *testing.T) {
	a := randHex(32)
	b := randHex(32)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestGenerateSelfSigned(t *testing.T) {
	certPEM, keyPEM, err := generateSelfSigned("userdeck.local")
	require.NoError(t, err)

	// the pair must load as a usable TLS certificate
	_, err = tls.X509KeyPair(certPEM, keyPEM)
	assert.NoError(t, err)
}
