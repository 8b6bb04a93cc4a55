package timeguard

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// stateVersion is the first byte of the encrypted container. Bump it
	// when the layout changes; old files then read as absent state.
	stateVersion byte = 1

	// Key derivation parameters. The key is derived from the machine
	// fingerprint, so a state file copied to another machine will not
	// decrypt there.
	kdfIterations = 100_000
	kdfKeyLen     = 32
	kdfSalt       = "voxd.timeguard.v1"

	stateFileMode = 0o600
)

// Store persists TimeState as an authenticated-encrypted, base64-encoded
// file. The encryption key is bound to the machine fingerprint: moving the
// file between machines or corrupting it makes it read as absent state,
// which resets history instead of crashing.
type Store struct {
	path string
	aead cipher.AEAD
}

// NewStore creates a store writing to path, keyed by the machine
// fingerprint.
func NewStore(path, machineFingerprint string) (*Store, error) {
	if path == "" {
		return nil, errors.New("timeguard: state path is empty")
	}

	key := pbkdf2.Key([]byte(machineFingerprint), []byte(kdfSalt), kdfIterations, kdfKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("timeguard: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("timeguard: init gcm: %w", err)
	}

	return &Store{path: path, aead: aead}, nil
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Load reads and decrypts the persisted state. A missing file returns
// (nil, nil). A file that exists but cannot be read or decrypted returns
// (nil, err); callers treat that the same as absent state but may surface
// the reason as a degraded signal.
func (s *Store) Load() (*TimeState, error) {
	encoded, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read time state: %w", err)
	}

	plaintext, err := s.decrypt(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode time state: %w", err)
	}

	var state TimeState
	if err := json.Unmarshal(plaintext, &state); err != nil {
		return nil, fmt.Errorf("parse time state: %w", err)
	}
	return &state, nil
}

// Save encrypts and writes the state. The file may have been marked hidden
// or read-only by a previous run, so attributes are cleared before the
// write; if the write still fails the file is unlinked and recreated once.
// After a successful write the file is re-hidden where the platform
// supports it.
func (s *Store) Save(state *TimeState) error {
	plaintext, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode time state: %w", err)
	}
	encoded, err := s.encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt time state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}

	if _, statErr := os.Stat(s.path); statErr == nil {
		// Best effort: a failure here surfaces on the write below.
		clearFileAttributes(s.path)
	}

	writeErr := os.WriteFile(s.path, encoded, stateFileMode)
	if writeErr != nil {
		if rmErr := os.Remove(s.path); rmErr == nil || os.IsNotExist(rmErr) {
			writeErr = os.WriteFile(s.path, encoded, stateFileMode)
		}
	}
	if writeErr != nil {
		return fmt.Errorf("persist time state: %w", writeErr)
	}

	hideFile(s.path)
	return nil
}

// Reset removes the persisted state. Missing files are not an error.
func (s *Store) Reset() error {
	if _, err := os.Stat(s.path); err == nil {
		clearFileAttributes(s.path)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove time state: %w", err)
	}
	return nil
}

// encrypt seals plaintext into version || nonce || ciphertext and encodes
// the result as standard base64 so the file stays plain text.
func (s *Store) encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nil, nonce, plaintext, nil)

	raw := make([]byte, 0, 1+len(nonce)+len(sealed))
	raw = append(raw, stateVersion)
	raw = append(raw, nonce...)
	raw = append(raw, sealed...)

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(encoded, raw)
	return encoded, nil
}

func (s *Store) decrypt(encoded []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(raw, bytes.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	raw = raw[:n]

	if len(raw) < 1+s.aead.NonceSize() {
		return nil, errors.New("container too short")
	}
	if raw[0] != stateVersion {
		return nil, fmt.Errorf("unsupported container version %d", raw[0])
	}

	nonce := raw[1 : 1+s.aead.NonceSize()]
	sealed := raw[1+s.aead.NonceSize():]

	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.New("authentication failed")
	}
	return plaintext, nil
}
