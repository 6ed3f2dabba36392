package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/scrypt"
)

// Key derivation parameters. The salt is fixed; uniqueness comes from the
// per-host identity the key is derived from.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	keyLen  = 32

	keySalt = "pitwall.credentials.v1"
)

// ErrStoreClosed is returned by mutations after [Store.Close].
var ErrStoreClosed = errors.New("credentials: store closed")

// State is the client-visible snapshot of the credential store, shaped for
// the config:state event. APIKeyValid is nil until a validation probe ran.
type State struct {
	APIKeyHint      string `json:"apiKeyHint"`
	HasAPIKey       bool   `json:"hasApiKey"`
	EngineerEnabled bool   `json:"engineerEnabled"`
	APIKeyValid     *bool  `json:"apiKeyValid"`
}

// storedCredentials is the on-disk JSON shape. APIKey holds the encrypted
// "iv:tag:ciphertext" record, never the plaintext.
type storedCredentials struct {
	APIKey          string `json:"apiKey,omitempty"`
	EngineerEnabled bool   `json:"engineerEnabled"`
}

// credentials is one immutable in-memory snapshot. Mutators clone it and
// swap the pointer; readers only ever see complete states.
type credentials struct {
	apiKey          string // effective plaintext key
	encKey          string // persisted encrypted form, "" when none
	engineerEnabled bool
	keyValid        *bool
}

func (c *credentials) clone() *credentials {
	dup := *c
	return &dup
}

// Store holds the Gemini API key and the engineer-enabled flag, persisted as
// a single JSON file whose key material is bound to this host: a copied file
// does not decrypt elsewhere. Reads are lock-free against an immutable
// snapshot; mutations are serialized through one control goroutine so file
// writes never interleave.
type Store struct {
	log  *slog.Logger
	path string
	aead cipher.AEAD

	cur atomic.Pointer[credentials]

	ops       chan storeOp
	done      chan struct{}
	closeOnce sync.Once
}

type storeOp struct {
	persist bool
	fn      func(*credentials) error
	reply   chan error
}

// hostKey derives the AES key once per process from stable host identity.
var hostKey = sync.OnceValues(func() ([]byte, error) {
	return scrypt.Key([]byte(hostIdentity()), []byte(keySalt), scryptN, scryptR, scryptP, keyLen)
})

// hostIdentity returns a stable per-host string: the machine ID where the OS
// provides one, the hostname otherwise.
func hostIdentity() string {
	for _, p := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if b, err := os.ReadFile(p); err == nil {
			if id := strings.TrimSpace(string(b)); id != "" {
				return id
			}
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "pitwall"
}

// OpenStore loads the credential file at path, or starts empty when the file
// is missing, corrupt, or written by another host. The GEMINI_API_KEY
// environment variable, when set, overrides the key in memory only.
func OpenStore(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	key, err := hostKey()
	if err != nil {
		return nil, fmt.Errorf("credentials: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credentials: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credentials: gcm: %w", err)
	}

	s := &Store{
		log:  log.With("component", "credentials"),
		path: path,
		aead: aead,
		ops:  make(chan storeOp),
		done: make(chan struct{}),
	}

	cur := s.loadFile()
	if env := os.Getenv("GEMINI_API_KEY"); env != "" {
		cur.apiKey = env
		s.log.Info("API key taken from environment; not persisted")
	}
	s.cur.Store(cur)

	go s.run()
	return s, nil
}

// loadFile reads and decrypts the credential file. Every failure mode
// degrades to an empty store with a warning; startup never fails on it.
func (s *Store) loadFile() *credentials {
	cur := &credentials{}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return cur
	}
	if err != nil {
		s.log.Warn("credential file unreadable, starting empty", "path", s.path, "error", err)
		return cur
	}

	var stored storedCredentials
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.log.Warn("credential file corrupt, starting empty", "path", s.path, "error", err)
		return cur
	}
	cur.engineerEnabled = stored.EngineerEnabled

	if stored.APIKey != "" {
		key, err := s.decrypt(stored.APIKey)
		if err != nil {
			s.log.Warn("stored API key does not decrypt on this host, dropping it", "error", err)
		} else {
			cur.apiKey = key
			cur.encKey = stored.APIKey
		}
	}
	return cur
}

// run executes mutations in arrival order until Close.
func (s *Store) run() {
	for {
		select {
		case op := <-s.ops:
			op.reply <- s.apply(op)
		case <-s.done:
			return
		}
	}
}

func (s *Store) apply(op storeOp) error {
	next := s.cur.Load().clone()
	if err := op.fn(next); err != nil {
		return err
	}
	if op.persist {
		if err := s.persist(next); err != nil {
			return err
		}
	}
	s.cur.Store(next)
	return nil
}

func (s *Store) mutate(persist bool, fn func(*credentials) error) error {
	select {
	case <-s.done:
		return ErrStoreClosed
	default:
	}
	op := storeOp{persist: persist, fn: fn, reply: make(chan error, 1)}
	select {
	case s.ops <- op:
		return <-op.reply
	case <-s.done:
		return ErrStoreClosed
	}
}

// persist writes the encrypted record to disk. Failures are returned to the
// mutating caller; the in-memory state is not updated on a failed write.
func (s *Store) persist(c *credentials) error {
	data, err := json.MarshalIndent(storedCredentials{
		APIKey:          c.encKey,
		EngineerEnabled: c.engineerEnabled,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("credentials: encode: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("credentials: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("credentials: write %s: %w", s.path, err)
	}
	return nil
}

// APIKey returns the effective API key, or "" when none is configured.
func (s *Store) APIKey() string { return s.cur.Load().apiKey }

// EngineerEnabled reports whether the voice engineer feature is switched on.
func (s *Store) EngineerEnabled() bool { return s.cur.Load().engineerEnabled }

// State returns the client-visible view of the store. The key itself never
// leaves the server; clients get a short hint.
func (s *Store) State() State {
	c := s.cur.Load()
	st := State{
		HasAPIKey:       c.apiKey != "",
		EngineerEnabled: c.engineerEnabled,
		APIKeyValid:     c.keyValid,
	}
	if c.apiKey != "" {
		st.APIKeyHint = keyHint(c.apiKey)
	}
	return st
}

// SetAPIKey encrypts and persists a new API key. The key takes effect
// immediately; its validation state resets to untested.
func (s *Store) SetAPIKey(key string) error {
	if key == "" {
		return errors.New("credentials: empty API key")
	}
	return s.mutate(true, func(c *credentials) error {
		enc, err := s.encrypt(key)
		if err != nil {
			return err
		}
		c.apiKey = key
		c.encKey = enc
		c.keyValid = nil
		return nil
	})
}

// DeleteKey removes the API key from memory and disk.
func (s *Store) DeleteKey() error {
	return s.mutate(true, func(c *credentials) error {
		c.apiKey = ""
		c.encKey = ""
		c.keyValid = nil
		return nil
	})
}

// SetEngineerEnabled persists the engineer feature flag.
func (s *Store) SetEngineerEnabled(enabled bool) error {
	return s.mutate(true, func(c *credentials) error {
		c.engineerEnabled = enabled
		return nil
	})
}

// MarkKeyValid records the outcome of the latest key validation probe.
// In-memory only; a restart returns the state to untested.
func (s *Store) MarkKeyValid(valid bool) {
	_ = s.mutate(false, func(c *credentials) error {
		c.keyValid = &valid
		return nil
	})
}

// Close stops the control goroutine. Reads keep working; further mutations
// return [ErrStoreClosed].
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// encrypt seals plaintext under the host key as "iv:tag:ciphertext" hex.
func (s *Store) encrypt(plaintext string) (string, error) {
	iv := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("credentials: nonce: %w", err)
	}
	sealed := s.aead.Seal(nil, iv, []byte(plaintext), nil)
	n := len(sealed) - s.aead.Overhead()
	ct, tag := sealed[:n], sealed[n:]
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// decrypt reverses encrypt. Malformed records and records sealed on another
// host both fail authentication and come back as errors.
func (s *Store) decrypt(record string) (string, error) {
	parts := strings.Split(record, ":")
	if len(parts) != 3 {
		return "", errors.New("credentials: malformed key record")
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != s.aead.NonceSize() {
		return "", errors.New("credentials: bad iv")
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", errors.New("credentials: bad tag")
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", errors.New("credentials: bad ciphertext")
	}
	plain, err := s.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("credentials: decrypt: %w", err)
	}
	return string(plain), nil
}

// keyHint renders a short preview of the key without leaking it.
func keyHint(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "…" + key[len(key)-4:]
}
