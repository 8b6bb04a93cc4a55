package machineid

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// diskSerialTimeout bounds the external lookup so a wedged management
// service cannot stall fingerprint collection.
const diskSerialTimeout = 5 * time.Second

func osName() string   { return runtime.GOOS }
func archName() string { return runtime.GOARCH }

// primaryMAC returns the hardware address of the first interface that is
// up and not a loopback. If none qualifies it falls back to any interface
// with a hardware address, so containers with only-down interfaces still
// fingerprint consistently.
func primaryMAC() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if addr := iface.HardwareAddr.String(); addr != "" {
			return addr, nil
		}
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if addr := iface.HardwareAddr.String(); addr != "" {
			return addr, nil
		}
	}

	return "", errors.New("no interface with a hardware address")
}

// cpuDescription returns a human-readable processor identifier. The lookup
// is OS specific; anything unrecognized falls back to GOARCH so the source
// still contributes.
func cpuDescription() (string, error) {
	switch runtime.GOOS {
	case "linux":
		data, err := os.ReadFile("/proc/cpuinfo")
		if err != nil {
			return "", fmt.Errorf("read cpuinfo: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "model name") {
				if _, model, ok := strings.Cut(line, ":"); ok {
					return strings.TrimSpace(model), nil
				}
			}
		}
		return runtime.GOARCH, nil

	case "darwin":
		ctx, cancel := context.WithTimeout(context.Background(), diskSerialTimeout)
		defer cancel()
		out, err := exec.CommandContext(ctx, "sysctl", "-n", "machdep.cpu.brand_string").Output()
		if err != nil {
			return "", fmt.Errorf("sysctl cpu brand: %w", err)
		}
		return strings.TrimSpace(string(out)), nil

	case "windows":
		if id := os.Getenv("PROCESSOR_IDENTIFIER"); id != "" {
			return strings.TrimSpace(id), nil
		}
		return runtime.GOARCH, nil

	default:
		return runtime.GOARCH, nil
	}
}

func hostname() (string, error) {
	name, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("hostname: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(name)), nil
}

func homeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home directory: %w", err)
	}
	return home, nil
}

// diskSerialSupported reports whether this platform contributes a disk
// serial. Only Windows does; elsewhere there is no uniform, unprivileged
// way to read one.
func diskSerialSupported() bool {
	return runtime.GOOS == "windows"
}

// diskSerial queries the system disk serial number via wmic. The first
// non-header, non-empty output line wins.
func diskSerial() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), diskSerialTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "wmic", "diskdrive", "get", "serialnumber").Output()
	if err != nil {
		return "", fmt.Errorf("wmic diskdrive: %w", err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, "SerialNumber") {
			continue
		}
		return line, nil
	}

	return "", errors.New("no disk serial reported")
}
