package license

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"voxd/internal/machineid"
	"voxd/internal/timeguard"
)

const (
	// renewalWarningDays is the threshold below which a valid license
	// logs a renewal warning on every verification.
	renewalWarningDays = 3

	// issueGraceSeconds is how far the clock may sit before the recorded
	// issue time before the artifact is rejected. The grace absorbs
	// timezone confusion and small clock skew between issuer and target.
	issueGraceSeconds = 3600
)

// Verdict is the outcome of one verification pass.
type Verdict struct {
	Valid         bool      `json:"valid"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	RemainingDays int       `json:"remaining_days"`
	Payload       *Payload  `json:"payload,omitempty"`
	Degraded      []string  `json:"degraded,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Info is the decoded artifact presented for display. It is built without
// verifying the signature: support staff need to inspect broken or
// mismatched artifacts too.
type Info struct {
	Status        string   `json:"status"`
	LicenseType   string   `json:"license_type"`
	Licensee      string   `json:"licensee"`
	MachineID     string   `json:"machine_id"`
	IssueDate     string   `json:"issue_date"`
	ExpiryDate    string   `json:"expiry_date"`
	RemainingDays int      `json:"remaining_days"`
	IsExpired     bool     `json:"is_expired"`
	Features      []string `json:"features"`
}

// Config assembles a Verifier. PublicKey and ArtifactPath are required;
// Identity defaults to a fresh one, Detector may be nil to skip clock
// checks (diagnostic tools do this), Metrics may be nil.
type Config struct {
	ArtifactPath string
	PublicKey    *rsa.PublicKey
	Identity     *machineid.Identity
	Detector     *timeguard.Detector
	StrictTime   bool
	Logger       *slog.Logger
	Metrics      *Metrics
}

// Verifier performs the full offline verification pass: artifact decode,
// signature check, machine binding, clock-tamper detection and expiry.
// A mutex serializes passes because the detector mutates persisted state;
// concurrent callers (HTTP handlers, the periodic recheck) queue up rather
// than interleave.
type Verifier struct {
	mu       sync.Mutex
	path     string
	pub      *rsa.PublicKey
	identity *machineid.Identity
	detector *timeguard.Detector
	strict   bool
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
}

// NewVerifier validates the configuration and builds a Verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.PublicKey == nil {
		return nil, fmt.Errorf("%w: no public key configured", ErrLicense)
	}
	if cfg.ArtifactPath == "" {
		return nil, fmt.Errorf("%w: no artifact path configured", ErrLicense)
	}

	identity := cfg.Identity
	if identity == nil {
		identity = machineid.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Verifier{
		path:     cfg.ArtifactPath,
		pub:      cfg.PublicKey,
		identity: identity,
		detector: cfg.Detector,
		strict:   cfg.StrictTime,
		logger:   logger.With(slog.String("component", "license")),
		metrics:  cfg.Metrics,
		now:      time.Now,
	}, nil
}

// Fingerprint returns this machine's fingerprint.
func (v *Verifier) Fingerprint() string { return v.identity.Fingerprint() }

// Verify runs one full verification pass. A nil error means the license
// is valid right now; the returned Verdict carries the remaining validity
// and any degraded signals. On failure the error wraps one of the
// sentinels and the verdict is nil.
func (v *Verifier) Verify(ctx context.Context) (*Verdict, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	start := time.Now()
	ctx, span := startVerifySpan(ctx, v.path)

	verdict, err := v.check(ctx)
	status := Classify(err)

	v.metrics.recordVerification(ctx, status, time.Since(start).Seconds())
	endVerifySpan(span, status, err)

	if err != nil {
		v.logger.WarnContext(ctx, "license verification failed",
			slog.String("status", status),
			slog.String("error", err.Error()))
		return nil, err
	}

	v.metrics.recordRemainingDays(ctx, verdict.RemainingDays)
	v.logger.DebugContext(ctx, "license verified",
		slog.Int("days_left", verdict.RemainingDays),
		slog.String("licensee", verdict.Payload.Licensee))
	return verdict, nil
}

// Status is the non-halting form of Verify: failures fold into the
// verdict instead of an error return. HTTP status endpoints and watch
// loops use this.
func (v *Verifier) Status(ctx context.Context) *Verdict {
	verdict, err := v.Verify(ctx)
	if err != nil {
		return &Verdict{
			Valid:     false,
			Status:    Classify(err),
			Message:   err.Error(),
			CheckedAt: time.Now(),
		}
	}
	return verdict
}

// check performs the verification steps in order. The order matters:
// cheap structural checks run before clock checks so a missing or mangled
// artifact never consumes tamper-detection state.
func (v *Verifier) check(ctx context.Context) (*Verdict, error) {
	fingerprint := v.identity.Fingerprint()

	artifact, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s; this machine's fingerprint is %s",
				ErrLicenseNotFound, v.path, fingerprint)
		}
		return nil, fmt.Errorf("%w: read artifact: %v", ErrLicenseInvalid, err)
	}

	payload, sig, err := Decode(artifact)
	if err != nil {
		return nil, err
	}

	ok, err := VerifySignature(v.pub, payload, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLicenseInvalid, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: signature verification failed; the artifact may have been modified",
			ErrLicenseInvalid)
	}

	if !machineid.Match(payload.MachineID, fingerprint) {
		return nil, fmt.Errorf("%w: issued to machine %s but this machine is %s",
			ErrLicenseInvalid, machineid.Masked(payload.MachineID), machineid.Masked(fingerprint))
	}

	var degraded []string
	if v.detector != nil {
		res := v.detector.Check()
		degraded = append(degraded, res.Degraded...)
		v.metrics.recordTamperSignals(ctx, len(res.Diagnostics))
		if !res.Valid {
			if v.strict {
				return nil, fmt.Errorf("%w: clock tampering detected: %s",
					ErrLicenseInvalid, strings.Join(res.Diagnostics, "; "))
			}
			v.logger.WarnContext(ctx, "clock tampering suspected, continuing without strict validation",
				slog.Any("diagnostics", res.Diagnostics))
			degraded = append(degraded, res.Diagnostics...)
		}
	}

	now := v.now()

	if payload.IssueTimestamp > 0 {
		nowSeconds := float64(now.UnixNano()) / 1e9
		if nowSeconds < payload.IssueTimestamp-issueGraceSeconds {
			return nil, fmt.Errorf("%w: system time is earlier than the license issue time; check the system clock",
				ErrLicenseInvalid)
		}
	}

	expiry, hasExpiry, err := payload.ExpiresAt()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLicenseInvalid, err)
	}

	verdict := &Verdict{
		Valid:     true,
		Status:    StatusActive,
		Payload:   payload,
		Degraded:  degraded,
		CheckedAt: now,
	}

	if !hasExpiry {
		verdict.RemainingDays = PermanentDays
		verdict.Message = "license valid (permanent)"
		return verdict, nil
	}

	if !now.Before(expiry) {
		return nil, fmt.Errorf("%w on %s", ErrLicenseExpired, expiry.Format(issueDateLayout))
	}

	days, err := payload.RemainingDays(now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLicenseInvalid, err)
	}
	verdict.RemainingDays = days
	verdict.Message = fmt.Sprintf("license valid, %d days remaining", days)

	if days <= renewalWarningDays {
		v.logger.WarnContext(ctx, "license expires soon, renew to avoid interruption",
			slog.Int("days_left", days),
			slog.String("expiry_date", payload.ExpiryDate))
	}

	return verdict, nil
}

// Info decodes the artifact for display without verifying its signature.
func (v *Verifier) Info(ctx context.Context) (*Info, error) {
	artifact, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrLicenseNotFound, v.path)
		}
		return nil, fmt.Errorf("%w: read artifact: %v", ErrLicenseInvalid, err)
	}

	payload, _, err := Decode(artifact)
	if err != nil {
		return nil, err
	}

	now := v.now()
	days, err := payload.RemainingDays(now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLicenseInvalid, err)
	}

	expired := false
	if expiry, ok, _ := payload.ExpiresAt(); ok && !now.Before(expiry) {
		expired = true
	}

	status := StatusActive
	if expired {
		status = StatusExpired
	}

	return &Info{
		Status:        status,
		LicenseType:   payload.LicenseType,
		Licensee:      payload.Licensee,
		MachineID:     machineid.Masked(payload.MachineID),
		IssueDate:     payload.IssueDate,
		ExpiryDate:    payload.ExpiryDisplay(),
		RemainingDays: days,
		IsExpired:     expired,
		Features:      payload.Features,
	}, nil
}
