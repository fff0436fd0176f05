package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Provider is the cryptographic contract the audit and credential cores
// depend on. Implementations must hash deterministically to a fixed length;
// the concrete digest and signature algorithms are deployment policy.
type Provider interface {
	Hash(data []byte) []byte
	Sign(message, privateKey []byte) ([]byte, error)
	Verify(message, signature, publicKey []byte) bool
	HexEncode(data []byte) string
	HexDecode(s string) ([]byte, error)
}

// SHA256Ed25519 is the default provider: SHA-256 digests and Ed25519
// signatures over raw key bytes.
type SHA256Ed25519 struct{}

func NewSHA256Ed25519() *SHA256Ed25519 {
	return &SHA256Ed25519{}
}

func (p *SHA256Ed25519) Hash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func (p *SHA256Ed25519) Sign(message, privateKey []byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length: %d", len(privateKey))
	}
	return ed25519.Sign(ed25519.PrivateKey(privateKey), message), nil
}

func (p *SHA256Ed25519) Verify(message, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}

func (p *SHA256Ed25519) HexEncode(data []byte) string {
	return hex.EncodeToString(data)
}

func (p *SHA256Ed25519) HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// GenerateKeyPair returns a fresh Ed25519 key pair as raw bytes.
func GenerateKeyPair() (publicKey, privateKey []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return pub, priv, nil
}
