package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// executableDir returns the directory holding the running binary, with
// symlinks resolved. Paths anchor here rather than the working directory
// so the daemon behaves identically under systemd, in a shell, and when
// started from a packaging script.
func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// resolvePaths absolutizes the data directory, then anchors every other
// relative path to it. Absolute paths in the config pass through.
func (c *Config) resolvePaths() error {
	if !filepath.IsAbs(c.DataDir) {
		base, err := executableDir()
		if err != nil {
			return fmt.Errorf("resolve data directory: %w", err)
		}
		c.DataDir = filepath.Join(base, c.DataDir)
	}

	c.License.File = c.againstDataDir(c.License.File)
	c.License.PublicKeyFile = c.againstDataDir(c.License.PublicKeyFile)
	c.TimeGuard.StateFile = c.againstDataDir(c.TimeGuard.StateFile)
	c.Logging.FilePath = c.againstDataDir(c.Logging.FilePath)
	return nil
}

func (c *Config) againstDataDir(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}

// EnsureDirs creates the directories the daemon writes to. Read-only
// paths (the license artifact, the public key) are left to the operator.
func (c *Config) EnsureDirs() error {
	dirs := []string{c.DataDir}
	if c.Logging.FilePath != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
