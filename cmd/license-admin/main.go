// Command license-admin is the vendor-side issuing tool: it generates the
// signing key pair, mints license artifacts bound to customer machines,
// and keeps a ledger of what was issued. The private key is written and
// read only here; deployments receive the public key and artifacts.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"

	"voxd/internal/config"
	"voxd/internal/license"
	"voxd/internal/machineid"
)

func main() {
	initKeys := flag.Bool("init", false, "generate a new signing key pair")
	force := flag.Bool("force", false, "overwrite existing key files with -init")
	generate := flag.Bool("generate", false, "mint a license artifact")
	machineID := flag.String("machine-id", machineid.Wildcard, "target machine fingerprint, or * for any machine")
	days := flag.Int("days", 0, "validity period in days, 0 for permanent")
	licensee := flag.String("licensee", "", "customer name embedded in the artifact")
	licType := flag.String("type", license.TypeStandard, "license tier: trial, standard or enterprise")
	features := flag.String("features", "", "comma-separated feature tags to grant")
	output := flag.String("output", "", "artifact output path (defaults into the licenses directory)")
	showPublicKey := flag.Bool("show-public-key", false, "print the verification key PEM")
	list := flag.Bool("list", false, "decode every artifact in the licenses directory and print a table")
	xlsxPath := flag.String("xlsx", "", "with -list: also export the ledger as a spreadsheet")
	keysDir := flag.String("keys", "keys", "directory holding the signing key pair")
	licensesDir := flag.String("licenses", "licenses", "directory scanned by -list and used for default output")
	flag.Parse()

	if *xlsxPath != "" && !*list {
		slog.Error("-xlsx requires -list")
		os.Exit(1)
	}

	ran := false
	if *initKeys {
		initKeyPair(*keysDir, *force)
		ran = true
	}
	if *showPublicKey {
		printPublicKey(*keysDir)
		ran = true
	}
	if *generate {
		generateLicense(*keysDir, *licensesDir, *output, *machineID, *licensee, *licType, *features, *days)
		ran = true
	}
	if *list {
		listLicenses(*licensesDir, *xlsxPath)
		ran = true
	}

	if !ran {
		flag.Usage()
		os.Exit(2)
	}
}

func initKeyPair(dir string, force bool) {
	privPath := filepath.Join(dir, config.PrivateKeyFileName)
	pubPath := filepath.Join(dir, config.PublicKeyFileName)

	if !force {
		for _, p := range []string{privPath, pubPath} {
			if _, err := os.Stat(p); err == nil {
				slog.Error("key file already exists, use -force to overwrite", "path", p)
				os.Exit(1)
			}
		}
	}

	key, err := license.GenerateKeyPair()
	if err != nil {
		slog.Error("key generation failed", "error", err)
		os.Exit(1)
	}
	privPEM, err := license.MarshalPrivateKey(key)
	if err != nil {
		slog.Error("key encoding failed", "error", err)
		os.Exit(1)
	}
	pubPEM, err := license.MarshalPublicKey(&key.PublicKey)
	if err != nil {
		slog.Error("key encoding failed", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("create keys directory", "dir", dir, "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		slog.Error("write private key", "path", privPath, "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		slog.Error("write public key", "path", pubPath, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %s\n", privPath)
	fmt.Printf("Wrote %s\n", pubPath)
	fmt.Println("Keep the private key on this machine; deployments only need the public key.")
}

func printPublicKey(keysDir string) {
	pem, err := os.ReadFile(filepath.Join(keysDir, config.PublicKeyFileName))
	if err != nil {
		slog.Error("public key unavailable, run -init first", "error", err)
		os.Exit(1)
	}
	fmt.Print(string(pem))
}

func generateLicense(keysDir, licensesDir, output, machineID, licensee, licType, features string, days int) {
	if licensee == "" {
		slog.Error("-generate requires -licensee")
		os.Exit(1)
	}

	key, err := license.LoadPrivateKeyFile(filepath.Join(keysDir, config.PrivateKeyFileName))
	if err != nil {
		slog.Error("private key unavailable, run -init first", "error", err)
		os.Exit(1)
	}

	var feats []string
	for _, f := range strings.Split(features, ",") {
		if f = strings.TrimSpace(f); f != "" {
			feats = append(feats, f)
		}
	}

	artifact, payload, err := license.NewIssuer(key).Issue(license.IssueRequest{
		MachineID: machineID,
		Licensee:  licensee,
		Type:      licType,
		Days:      days,
		Features:  feats,
	})
	if err != nil {
		slog.Error("issue failed", "error", err)
		os.Exit(1)
	}

	if output == "" {
		name := fmt.Sprintf("license_%s_%s.lic", sanitize(licensee), time.Now().Format("20060102"))
		output = filepath.Join(licensesDir, name)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		slog.Error("create output directory", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(output, artifact, 0o644); err != nil {
		slog.Error("write artifact", "path", output, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %s\n", output)
	fmt.Printf("  Licensee: %s\n", payload.Licensee)
	fmt.Printf("  Type    : %s\n", payload.LicenseType)
	fmt.Printf("  Machine : %s\n", payload.MachineID)
	fmt.Printf("  Expires : %s\n", payload.ExpiryDisplay())
	fmt.Printf("  Features: %s\n", strings.Join(payload.Features, ", "))
}

// sanitize makes a licensee name safe for a file name.
func sanitize(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return unicode.ToLower(r)
		default:
			return '_'
		}
	}, name)
	mapped = strings.Trim(mapped, "_")
	if mapped == "" {
		return "unnamed"
	}
	return mapped
}

// ledgerEntry is one decoded artifact in the licenses directory.
type ledgerEntry struct {
	File    string
	Payload *license.Payload
}

func listLicenses(dir, xlsxPath string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Error("read licenses directory", "dir", dir, "error", err)
		os.Exit(1)
	}

	var ledger []ledgerEntry
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lic") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			slog.Warn("skipping unreadable artifact", "file", e.Name(), "error", err)
			continue
		}
		payload, _, err := license.Decode(data)
		if err != nil {
			slog.Warn("skipping undecodable artifact", "file", e.Name(), "error", err)
			continue
		}
		ledger = append(ledger, ledgerEntry{File: e.Name(), Payload: payload})
	}

	if len(ledger) == 0 {
		fmt.Printf("No license artifacts found in %s\n", dir)
		return
	}

	fmt.Printf("%-44s %-24s %-10s %-34s %-26s %s\n",
		"FILE", "LICENSEE", "TYPE", "MACHINE", "EXPIRES", "FEATURES")
	for _, e := range ledger {
		fmt.Printf("%-44s %-24s %-10s %-34s %-26s %s\n",
			e.File, e.Payload.Licensee, e.Payload.LicenseType, e.Payload.MachineID,
			e.Payload.ExpiryDisplay(), strings.Join(e.Payload.Features, ","))
	}

	if xlsxPath != "" {
		if err := exportLedger(ledger, xlsxPath); err != nil {
			slog.Error("xlsx export failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", xlsxPath)
	}
}

// exportLedger writes the decoded artifacts as a spreadsheet for the
// records kept on the sales side.
func exportLedger(ledger []ledgerEntry, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Licenses"
	f.SetSheetName(f.GetSheetName(0), sheet)

	headers := []string{"File", "Licensee", "Type", "Machine ID", "Issued", "Expires", "Features"}
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue(sheet, col+"1", h)
	}

	for row, e := range ledger {
		values := []any{
			e.File,
			e.Payload.Licensee,
			e.Payload.LicenseType,
			e.Payload.MachineID,
			e.Payload.IssueDate,
			e.Payload.ExpiryDisplay(),
			strings.Join(e.Payload.Features, ", "),
		}
		for col, v := range values {
			name, _ := excelize.ColumnNumberToName(col + 1)
			f.SetCellValue(sheet, fmt.Sprintf("%s%d", name, row+2), v)
		}
	}

	return f.SaveAs(path)
}
