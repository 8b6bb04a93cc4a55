package license

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
)

// pssOptions are shared between signing and verification. Auto salt length
// means maximum possible salt when signing and auto-detection when
// verifying, which keeps the two sides compatible.
var pssOptions = rsa.PSSOptions{
	SaltLength: rsa.PSSSaltLengthAuto,
	Hash:       crypto.SHA256,
}

// Sign produces an RSA-PSS signature over the payload's canonical JSON.
func Sign(key *rsa.PrivateKey, payload *Payload) ([]byte, error) {
	canonical, err := payload.Canonical()
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(canonical)

	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], &pssOptions)
	if err != nil {
		return nil, fmt.Errorf("sign payload: %w", err)
	}
	return sig, nil
}

// VerifySignature checks an RSA-PSS signature against the payload's
// canonical JSON. It returns (false, nil) for a signature that simply does
// not match; the error return is reserved for payloads that cannot be
// canonicalized at all.
func VerifySignature(pub *rsa.PublicKey, payload *Payload, sig []byte) (bool, error) {
	canonical, err := payload.Canonical()
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256(canonical)

	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &pssOptions); err != nil {
		if errors.Is(err, rsa.ErrVerification) {
			return false, nil
		}
		return false, fmt.Errorf("verify signature: %w", err)
	}
	return true, nil
}
