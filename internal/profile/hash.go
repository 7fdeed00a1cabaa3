package profile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainProfile prefixes profile digests. The version suffix leaves room to
// change the document encoding later.
const DomainProfile = "deckd/profile/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns the content hash of a profile's canonical document.
func Digest(p *Profile) (string, error) {
	doc, err := Encode(p)
	if err != nil {
		return "", fmt.Errorf("Digest: %w", err)
	}
	return DigestDocument(doc), nil
}

// DigestDocument hashes an already canonical profile document.
func DigestDocument(doc []byte) string {
	return hashWithDomain(DomainProfile, doc)
}
