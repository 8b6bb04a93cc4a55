package license

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// License tiers accepted by the issuer.
const (
	TypeTrial      = "trial"
	TypeStandard   = "standard"
	TypeEnterprise = "enterprise"
)

// DefaultFeatures is granted when an issue request names none.
var DefaultFeatures = []string{"basic"}

// IssueRequest describes one license to mint.
type IssueRequest struct {
	// MachineID is a fingerprint collected from the target machine, or
	// the wildcard "*" for a license valid anywhere.
	MachineID string `json:"machine_id" validate:"required"`

	// Licensee is the customer name embedded in the artifact.
	Licensee string `json:"licensee" validate:"required,max=128"`

	// Type is the commercial tier.
	Type string `json:"license_type" validate:"required,oneof=trial standard enterprise"`

	// Days is the validity period from now. Zero means permanent.
	Days int `json:"days" validate:"min=0,max=36500"`

	// Features lists capability tags to grant; empty means DefaultFeatures.
	Features []string `json:"features" validate:"omitempty,dive,required"`
}

// Issuer mints signed license artifacts. It lives on the vendor side
// only; deployments never hold the private key it wraps.
type Issuer struct {
	key      *rsa.PrivateKey
	validate *validator.Validate
}

// NewIssuer creates an issuer signing with the given private key.
func NewIssuer(key *rsa.PrivateKey) *Issuer {
	return &Issuer{
		key:      key,
		validate: validator.New(),
	}
}

// Issue validates the request, builds the payload, signs it and returns
// the encoded artifact together with the payload it contains.
func (i *Issuer) Issue(req IssueRequest) ([]byte, *Payload, error) {
	if i.key == nil {
		return nil, nil, fmt.Errorf("issue license: no signing key")
	}
	if err := i.validate.Struct(req); err != nil {
		return nil, nil, fmt.Errorf("invalid issue request: %w", err)
	}

	features := req.Features
	if len(features) == 0 {
		features = append([]string(nil), DefaultFeatures...)
	}

	now := time.Now()
	payload := &Payload{
		LicenseType:    req.Type,
		Licensee:       req.Licensee,
		MachineID:      req.MachineID,
		IssueDate:      now.Format(issueDateLayout),
		IssueTimestamp: float64(now.UnixNano()) / 1e9,
		Features:       features,
	}
	if req.Days > 0 {
		payload.ExpiryDate = now.AddDate(0, 0, req.Days).Format(expiryDateLayout)
	}

	sig, err := Sign(i.key, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("issue license: %w", err)
	}
	artifact, err := Encode(payload, sig)
	if err != nil {
		return nil, nil, fmt.Errorf("issue license: %w", err)
	}
	return artifact, payload, nil
}
