// Package vc implements verifiable credentials: signed, checkable
// assertions of claims about a subject device, issued by an identified
// issuer. Signing and verification both run over the same canonical byte
// serialization, so claim insertion order never changes the signature.
package vc

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veritrail/veritrail/internal/canonical"
	"github.com/veritrail/veritrail/internal/crypto"
)

const (
	ContextCredentialsV1 = "https://www.w3.org/2018/credentials/v1"
	TypeBase             = "VerifiableCredential"

	proofType    = "Ed25519Signature2020"
	proofPurpose = "assertionMethod"
	keyRefSuffix = "#keys-1"
)

// ErrAlreadySigned is returned when a credential is mutated or re-signed
// after its proof has been attached. A signed credential is immutable;
// changing it would silently desynchronize content and proof.
var ErrAlreadySigned = errors.New("credential is already signed")

// Subject is the entity a credential makes claims about.
type Subject struct {
	ID     string                     `json:"id"`
	Claims map[string]canonical.Value `json:"claims"`
}

// Proof is created once inside Sign and never mutated afterward.
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	ProofPurpose       string `json:"proofPurpose"`
	VerificationMethod string `json:"verificationMethod"`
	SignatureValue     string `json:"signatureValue"`
}

// Credential is a claim-set about a subject. It starts unsigned; Sign
// attaches the proof exactly once. The JSON field names are a wire contract.
type Credential struct {
	Context        []string   `json:"@context"`
	ID             string     `json:"id"`
	Types          []string   `json:"type"`
	Issuer         string     `json:"issuer"`
	IssuanceDate   time.Time  `json:"issuanceDate"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`
	Subject        Subject    `json:"credentialSubject"`
	Proof          *Proof     `json:"proof,omitempty"`
}

// New builds an unsigned credential with a fresh URN id and the base
// context and type.
func New(issuer, subjectID string, claims map[string]canonical.Value) *Credential {
	copied := make(map[string]canonical.Value, len(claims))
	for k, v := range claims {
		copied[k] = v
	}

	return &Credential{
		Context:      []string{ContextCredentialsV1},
		ID:           "urn:uuid:" + uuid.NewString(),
		Types:        []string{TypeBase},
		Issuer:       issuer,
		IssuanceDate: time.Now().UTC(),
		Subject: Subject{
			ID:     subjectID,
			Claims: copied,
		},
	}
}

// AddType appends a specific credential type. Adding a type that is already
// present is a no-op. Signed credentials reject the mutation instead of
// silently invalidating their proof.
func (c *Credential) AddType(credentialType string) error {
	if c.Proof != nil {
		return ErrAlreadySigned
	}
	for _, t := range c.Types {
		if t == credentialType {
			return nil
		}
	}
	c.Types = append(c.Types, credentialType)
	return nil
}

// SetExpiration sets the expiration date to now + d.
func (c *Credential) SetExpiration(d time.Duration) error {
	if c.Proof != nil {
		return ErrAlreadySigned
	}
	expires := time.Now().UTC().Add(d)
	c.ExpirationDate = &expires
	return nil
}

// Sign computes the canonical serialization, signs it with the issuer's
// private key and attaches the proof. The assignment is all-or-nothing: a
// signing failure leaves the credential unsigned.
func (c *Credential) Sign(provider crypto.Provider, issuerPrivateKey []byte) error {
	if c.Proof != nil {
		return ErrAlreadySigned
	}

	signature, err := provider.Sign(c.signingBytes(), issuerPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to sign credential: %w", err)
	}

	c.Proof = &Proof{
		Type:               proofType,
		Created:            time.Now().UTC().Format(time.RFC3339),
		ProofPurpose:       proofPurpose,
		VerificationMethod: c.Issuer + keyRefSuffix,
		SignatureValue:     provider.HexEncode(signature),
	}
	return nil
}

// Verify reports whether the proof's signature matches the credential
// content under the supplied issuer public key. It returns false for an
// unsigned credential. Expiration is deliberately not consulted here:
// callers that enforce lifetimes must combine Verify with an explicit
// expiration check on ExpirationDate.
func (c *Credential) Verify(provider crypto.Provider, issuerPublicKey []byte) bool {
	if c.Proof == nil {
		return false
	}
	signature, err := provider.HexDecode(c.Proof.SignatureValue)
	if err != nil {
		return false
	}
	return provider.Verify(c.signingBytes(), signature, issuerPublicKey)
}

// IsExpired reports false when no expiration date is set. Expiration
// comparison for dated credentials is not performed yet; the method
// currently reports false for those as well, and callers needing
// enforcement must check ExpirationDate themselves.
func (c *Credential) IsExpired() bool {
	if c.ExpirationDate == nil {
		return false
	}
	return false
}

// signingBytes is the canonical serialization covered by the proof: id,
// issuer, issuance date, expiration date when present, subject id, then the
// claims sorted by key. Timestamps are projected to epoch milliseconds.
func (c *Credential) signingBytes() []byte {
	enc := canonical.NewEncoder()
	enc.WriteString(c.ID)
	enc.WriteString(c.Issuer)
	enc.WriteInt64(c.IssuanceDate.UnixMilli())
	if c.ExpirationDate != nil {
		enc.WriteInt64(c.ExpirationDate.UnixMilli())
	}
	enc.WriteString(c.Subject.ID)
	enc.WriteMap(c.Subject.Claims)
	return enc.Bytes()
}
