package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/ports"
)

// envelopeKey is the variable that carries the sealed state.
const envelopeKey = "__encrypted__"

var (
	// ErrInvalidKey is returned for keys that are not 32 bytes.
	ErrInvalidKey = errors.New("encryption key must be 32 bytes (AES-256)")
	// ErrNotEncrypted is returned when a stored state carries no envelope.
	ErrNotEncrypted = errors.New("state is missing encrypted data envelope")
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot open a
	// state, so keys can be rotated without rewriting stored playthroughs.
	FallbackKeys [][]byte

	// AllowPlaintext loads states saved before encryption was enabled.
	// They are encrypted on their next save.
	AllowPlaintext bool
}

type encryptionMiddleware struct {
	next   ports.PlaythroughStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals states with AES-GCM.
// The stored envelope keeps the ids, graph version and status readable for
// monitoring; everything else is sealed.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	for _, key := range append([][]byte{config.ActiveKey}, config.FallbackKeys...) {
		if len(key) != 32 {
			return nil, ErrInvalidKey
		}
	}
	return func(next ports.PlaythroughStore) ports.PlaythroughStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

// ParseKey decodes a base64 encoded AES-256 key.
func ParseKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	return key, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, playthroughID string, state *domain.GameState) error {
	plainText, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	envelope := &domain.GameState{
		PlaythroughID: state.PlaythroughID,
		StoryID:       state.StoryID,
		GraphVersion:  state.GraphVersion,
		Status:        state.Status,
		Variables: map[string]any{
			envelopeKey: base64.StdEncoding.EncodeToString(ciphertext),
		},
	}
	return m.next.Save(ctx, playthroughID, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, playthroughID string) (*domain.GameState, error) {
	envelope, err := m.next.Load(ctx, playthroughID)
	if err != nil {
		return nil, err
	}

	encoded, ok := envelope.Variables[envelopeKey].(string)
	if !ok {
		if m.config.AllowPlaintext {
			return envelope, nil
		}
		return nil, ErrNotEncrypted
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state: %w", err)
	}

	var state domain.GameState
	if err := json.Unmarshal(plainText, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted state: %w", err)
	}
	return &state, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, playthroughID string) error {
	return m.next.Delete(ctx, playthroughID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	for _, key := range append([][]byte{activeKey}, fallbackKeys...) {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}
