package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"github.com/grabarr/grabarr/internal/store/types"
)

var (
	ErrInvalidCiphertext = errors.New("credential payload is not valid ciphertext")
	ErrMalformedPayload  = errors.New("decrypted credential payload is malformed")
)

// Keeper encrypts and decrypts credential payloads at rest with an age X25519
// identity persisted next to the database.
type Keeper struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewKeeper loads the identity from keyPath, generating and persisting a fresh
// one (0600) on first run.
func NewKeeper(keyPath string) (*Keeper, error) {
	data, err := os.ReadFile(keyPath)
	if err == nil {
		identity, err := age.ParseX25519Identity(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("NewKeeper: invalid key file %s -> %w", keyPath, err)
		}
		return &Keeper{identity: identity, recipient: identity.Recipient()}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("NewKeeper: error reading key file -> %w", err)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("NewKeeper: error generating identity -> %w", err)
	}

	if dir := filepath.Dir(keyPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("NewKeeper: error creating key directory -> %w", err)
		}
	}
	if err := os.WriteFile(keyPath, []byte(identity.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("NewKeeper: error writing key file -> %w", err)
	}

	return &Keeper{identity: identity, recipient: identity.Recipient()}, nil
}

// Encrypt serializes the flat key-value credential map and seals it into a
// base64 token suitable for a text column.
func (k *Keeper) Encrypt(data types.CredentialData) (string, error) {
	plain, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("Encrypt: error marshaling payload -> %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, k.recipient)
	if err != nil {
		return "", fmt.Errorf("Encrypt: error starting encryption -> %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return "", fmt.Errorf("Encrypt: error writing payload -> %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Encrypt: error finalizing payload -> %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decrypt reverses Encrypt. Invalid ciphertext and malformed payloads raise
// distinguishable errors; callers must treat credential resolution as fallible.
func (k *Keeper) Decrypt(token string) (types.CredentialData, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCiphertext, err)
	}

	r, err := age.Decrypt(bytes.NewReader(raw), k.identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCiphertext, err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCiphertext, err)
	}

	var data types.CredentialData
	if err := json.Unmarshal(plain, &data); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}
	return data, nil
}
