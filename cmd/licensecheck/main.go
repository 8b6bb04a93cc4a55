// Command licensecheck is the deployed-side license diagnostic. It prints
// the machine fingerprint an operator sends in with a license request,
// inspects the artifact on disk without verifying it, and runs the full
// verification pass with a PASS or FAIL result.
//
// Results go to stdout for humans; log output goes to stderr at warn
// level so scripted callers can rely on the exit code alone.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"voxd/internal/config"
	"voxd/internal/license"
	"voxd/internal/machineid"
	"voxd/internal/timeguard"
)

func main() {
	showMachineID := flag.Bool("machine-id", false, "print the machine fingerprint and its source report")
	showInfo := flag.Bool("info", false, "print the license artifact details without verifying")
	runVerify := flag.Bool("verify", false, "run the full verification pass (the default action)")
	licensePath := flag.String("license", "", "license artifact path, overriding the configuration")
	configPath := flag.String("config", "", "config file path")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if !*showMachineID && !*showInfo {
		*runVerify = true
	}

	identity := machineid.New()
	exitCode := 0

	if *showMachineID {
		printFingerprint(identity)
	}

	if *showInfo || *runVerify {
		verifier := buildVerifier(*configPath, *licensePath, identity, logger)
		ctx := context.Background()

		if *showInfo && !printInfo(ctx, verifier) {
			exitCode = 1
		}
		if *runVerify && !verify(ctx, verifier) {
			exitCode = 1
		}
	}

	os.Exit(exitCode)
}

// buildVerifier assembles the same verification stack the daemon runs,
// clock-tamper detection included. Any assembly failure is fatal.
func buildVerifier(configPath, licensePath string, identity *machineid.Identity, logger *slog.Logger) *license.Verifier {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("configuration load failed", "error", err)
		os.Exit(1)
	}
	if licensePath != "" {
		cfg.License.File = licensePath
	}

	pub, err := license.ResolvePublicKey(cfg.License.PublicKey, cfg.License.PublicKeyFile)
	if err != nil {
		slog.Error("public key load failed", "error", err)
		os.Exit(1)
	}

	store, err := timeguard.NewStore(cfg.TimeGuard.StateFile, identity.Fingerprint())
	if err != nil {
		slog.Error("time state store unavailable", "error", err)
		os.Exit(1)
	}
	detector := timeguard.NewDetector(store, timeguard.Options{
		Tolerance:      cfg.TimeGuard.Tolerance(),
		ReferencePaths: cfg.TimeGuard.ReferenceFiles,
		Logger:         logger,
	})

	verifier, err := license.NewVerifier(license.Config{
		ArtifactPath: cfg.License.File,
		PublicKey:    pub,
		Identity:     identity,
		Detector:     detector,
		StrictTime:   cfg.License.StrictTimeValidation,
		Logger:       logger,
	})
	if err != nil {
		slog.Error("verifier construction failed", "error", err)
		os.Exit(1)
	}
	return verifier
}

func printFingerprint(identity *machineid.Identity) {
	fmt.Printf("Machine fingerprint: %s\n", identity.Fingerprint())
	fmt.Println("Sources:")
	for _, s := range identity.Sources() {
		if s.Err != "" {
			fmt.Printf("  %-12s (unavailable: %s)\n", s.Name, s.Err)
			continue
		}
		fmt.Printf("  %-12s %s\n", s.Name, s.Value)
	}
}

// printInfo decodes the artifact without verifying it and reports whether
// that succeeded. Support staff use this view on broken artifacts too.
func printInfo(ctx context.Context, verifier *license.Verifier) bool {
	info, err := verifier.Info(ctx)
	if err != nil {
		fmt.Printf("License info unavailable: %v\n", err)
		return false
	}

	fmt.Printf("Status        : %s\n", info.Status)
	fmt.Printf("Type          : %s\n", info.LicenseType)
	fmt.Printf("Licensee      : %s\n", info.Licensee)
	fmt.Printf("Machine       : %s\n", info.MachineID)
	fmt.Printf("Issued        : %s\n", info.IssueDate)
	fmt.Printf("Expires       : %s\n", info.ExpiryDate)
	fmt.Printf("Remaining days: %d\n", info.RemainingDays)
	fmt.Printf("Features      : %s\n", strings.Join(info.Features, ", "))
	return true
}

func verify(ctx context.Context, verifier *license.Verifier) bool {
	verdict, err := verifier.Verify(ctx)
	if err != nil {
		fmt.Printf("FAIL: %v\n", err)
		return false
	}

	fmt.Printf("PASS: %s\n", verdict.Message)
	if len(verdict.Degraded) > 0 {
		fmt.Printf("Degraded signals: %s\n", strings.Join(verdict.Degraded, ", "))
	}
	return true
}
