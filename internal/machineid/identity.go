// Package machineid derives a stable fingerprint for the machine the
// process runs on. The fingerprint binds license artifacts to hardware:
// it is a SHA-256 digest over a set of host characteristics, truncated
// to 32 hex characters so it stays readable in support requests.
package machineid

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

const (
	// Wildcard in a license artifact's machine_id field matches any machine.
	Wildcard = "*"

	// fingerprintLength is the number of hex characters kept from the digest.
	fingerprintLength = 32

	// maskVisible is how many leading characters Masked leaves readable.
	maskVisible = 8

	defaultCacheTTL = time.Hour
)

// Source describes one host characteristic that feeds the fingerprint.
// A Source with a non-empty Err was unavailable on this host and did not
// contribute; the fingerprint degrades gracefully instead of failing.
type Source struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
	Err   string `json:"error,omitempty"`
}

// Identity computes and caches the machine fingerprint. Collection touches
// the network stack and may shell out for the disk serial, so results are
// cached and refreshed lazily.
type Identity struct {
	mu       sync.RWMutex
	cached   string
	sources  []Source
	fetched  time.Time
	cacheTTL time.Duration
	static   bool
}

// New creates an Identity with the default cache TTL.
func New() *Identity {
	return &Identity{cacheTTL: defaultCacheTTL}
}

// NewStatic returns an Identity pinned to a fixed fingerprint. It never
// touches the host. Used by tests and by support tooling that replays
// verification as some other machine.
func NewStatic(fingerprint string) *Identity {
	return &Identity{
		cached:  fingerprint,
		sources: []Source{{Name: "static", Value: fingerprint}},
		static:  true,
	}
}

// Fingerprint returns the 32-character machine fingerprint. The value is
// cached; collection never fails because the OS name and architecture are
// always available even when every optional source is not.
func (id *Identity) Fingerprint() string {
	id.mu.RLock()
	if id.static || (id.cached != "" && time.Since(id.fetched) < id.cacheTTL) {
		fp := id.cached
		id.mu.RUnlock()
		return fp
	}
	id.mu.RUnlock()

	return id.Refresh()
}

// Refresh recomputes the fingerprint, bypassing the cache. Static
// identities have nothing to recompute.
func (id *Identity) Refresh() string {
	if id.static {
		return id.cached
	}

	fp, sources := collect()

	id.mu.Lock()
	id.cached = fp
	id.sources = sources
	id.fetched = time.Now()
	id.mu.Unlock()

	return fp
}

// Sources returns the host characteristics behind the current fingerprint,
// including entries that were unavailable. Useful for support diagnostics.
func (id *Identity) Sources() []Source {
	id.mu.RLock()
	cached := id.cached
	id.mu.RUnlock()

	if cached == "" {
		id.Refresh()
	}

	id.mu.RLock()
	defer id.mu.RUnlock()
	out := make([]Source, len(id.sources))
	copy(out, id.sources)
	return out
}

// Degraded lists the names of sources that could not be collected.
func (id *Identity) Degraded() []string {
	var names []string
	for _, s := range id.Sources() {
		if s.Err != "" {
			names = append(names, s.Name)
		}
	}
	return names
}

// collect gathers host characteristics and hashes them. Sources that fail
// are recorded with their error and omitted from the digest input, so two
// hosts differing only in which sources failed produce different prints.
func collect() (string, []Source) {
	sources := []Source{
		{Name: "os", Value: osName()},
		{Name: "arch", Value: archName()},
	}

	probe := func(name string, fn func() (string, error)) {
		v, err := fn()
		if err != nil {
			sources = append(sources, Source{Name: name, Err: err.Error()})
			return
		}
		sources = append(sources, Source{Name: name, Value: v})
	}

	probe("mac", primaryMAC)
	probe("cpu", cpuDescription)
	probe("hostname", hostname)
	probe("home", homeDir)
	if diskSerialSupported() {
		probe("disk_serial", diskSerial)
	}

	parts := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.Err == "" {
			parts = append(parts, s.Value)
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:fingerprintLength], sources
}

// Masked returns a display-safe form of a fingerprint: the first eight
// characters followed by "...". Log lines and status responses use this so
// a full fingerprint never leaks into shared output.
func Masked(fp string) string {
	if len(fp) <= maskVisible {
		return fp
	}
	return fp[:maskVisible] + "..."
}

// Match reports whether a license bound to licensed accepts a machine with
// fingerprint actual. The wildcard binds to every machine.
func Match(licensed, actual string) bool {
	return licensed == Wildcard || licensed == actual
}
