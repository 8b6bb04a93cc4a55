package license

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// envelope is the outer structure of a license artifact: the payload plus
// a detached signature over the payload's canonical form. The whole
// envelope is base64 encoded so artifacts survive copy-paste through mail
// clients and chat tools.
type envelope struct {
	Data      *Payload `json:"data"`
	Signature string   `json:"signature"`
}

// Encode packs a payload and its signature into artifact text.
func Encode(payload *Payload, sig []byte) ([]byte, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: no payload", ErrLicenseInvalid)
	}
	raw, err := json.Marshal(envelope{
		Data:      payload,
		Signature: base64.StdEncoding.EncodeToString(sig),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode envelope: %v", ErrLicenseInvalid, err)
	}

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(encoded, raw)
	return encoded, nil
}

// Decode unpacks artifact text into the payload and raw signature bytes.
// Every structural defect wraps ErrLicenseInvalid: a corrupt artifact and
// a forged one are indistinguishable and handled the same way.
func Decode(artifact []byte) (*Payload, []byte, error) {
	trimmed := bytes.TrimSpace(artifact)
	if len(trimmed) == 0 {
		return nil, nil, fmt.Errorf("%w: empty artifact", ErrLicenseInvalid)
	}

	raw := make([]byte, base64.StdEncoding.DecodedLen(len(trimmed)))
	n, err := base64.StdEncoding.Decode(raw, trimmed)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: artifact is not valid base64: %v", ErrLicenseInvalid, err)
	}

	var env envelope
	if err := json.Unmarshal(raw[:n], &env); err != nil {
		return nil, nil, fmt.Errorf("%w: artifact envelope is not valid JSON: %v", ErrLicenseInvalid, err)
	}
	if env.Data == nil {
		return nil, nil, fmt.Errorf("%w: artifact has no payload", ErrLicenseInvalid)
	}
	if env.Signature == "" {
		return nil, nil, fmt.Errorf("%w: artifact has no signature", ErrLicenseInvalid)
	}

	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: signature is not valid base64: %v", ErrLicenseInvalid, err)
	}

	return env.Data, sig, nil
}
