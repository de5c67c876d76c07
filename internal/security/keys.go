package security

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	aead "github.com/hashicorp/go-kms-wrapping/v2/aead"
	"github.com/noteduco342/courtside-chat/internal/config"
)

// KeyProvider supplies the 32-byte content key.
type KeyProvider interface {
	DataKey(ctx context.Context) ([]byte, error)
}

// EnvKeyProvider derives the key from a configured secret. A secret that is the
// base64 encoding of 32 bytes is used directly; any other string is hashed.
type EnvKeyProvider struct {
	secret string
}

func NewEnvKeyProvider(secret string) *EnvKeyProvider {
	return &EnvKeyProvider{secret: secret}
}

func (p *EnvKeyProvider) DataKey(ctx context.Context) ([]byte, error) {
	if p.secret == "" {
		return nil, errors.New("encryption key not configured")
	}
	if raw, err := base64.StdEncoding.DecodeString(p.secret); err == nil && len(raw) == 32 {
		return raw, nil
	}
	sum := sha256.Sum256([]byte(p.secret))
	return sum[:], nil
}

const wrapperKeyID = "chat-root"

// WrappedKeyProvider unwraps a data key that was sealed under a root key with the
// go-kms-wrapping AEAD wrapper. The unwrapped key is cached after first use.
type WrappedKeyProvider struct {
	rootKey    string
	wrappedKey string

	mu  sync.Mutex
	key []byte
}

func NewWrappedKeyProvider(rootKeyB64, wrappedKeyB64 string) *WrappedKeyProvider {
	return &WrappedKeyProvider{rootKey: strings.TrimSpace(rootKeyB64), wrappedKey: strings.TrimSpace(wrappedKeyB64)}
}

func (p *WrappedKeyProvider) DataKey(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.key != nil {
		return p.key, nil
	}

	w, err := newRootWrapper(ctx, p.rootKey)
	if err != nil {
		return nil, err
	}
	blob, err := base64.StdEncoding.DecodeString(p.wrappedKey)
	if err != nil {
		return nil, fmt.Errorf("decode wrapped data key: %w", err)
	}
	key, err := w.Decrypt(ctx, &wrapping.BlobInfo{
		Ciphertext: blob,
		KeyInfo:    &wrapping.KeyInfo{KeyId: wrapperKeyID},
	})
	if err != nil {
		return nil, fmt.Errorf("unwrap data key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("unwrapped data key must be 32 bytes, got %d", len(key))
	}
	p.key = key
	return key, nil
}

// WrapDataKey seals a 32-byte data key under the root key and returns the base64
// blob expected by WrappedKeyProvider.
func WrapDataKey(ctx context.Context, rootKeyB64 string, dataKey []byte) (string, error) {
	if len(dataKey) != 32 {
		return "", errors.New("data key must be 32 bytes")
	}
	w, err := newRootWrapper(ctx, rootKeyB64)
	if err != nil {
		return "", err
	}
	info, err := w.Encrypt(ctx, dataKey)
	if err != nil {
		return "", fmt.Errorf("wrap data key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(info.Ciphertext), nil
}

func newRootWrapper(ctx context.Context, rootKeyB64 string) (*aead.Wrapper, error) {
	raw, err := base64.StdEncoding.DecodeString(rootKeyB64)
	if err != nil || len(raw) != 32 {
		return nil, errors.New("root key must be base64 of 32 bytes")
	}
	w := aead.NewWrapper()
	cfg := map[string]string{"key": rootKeyB64, "key_id": wrapperKeyID}
	if _, err := w.SetConfig(ctx, wrapping.WithConfigMap(cfg)); err != nil {
		return nil, fmt.Errorf("configure root wrapper: %w", err)
	}
	return w, nil
}

// ProviderFromConfig prefers the wrapped key when both root key and blob are set.
func ProviderFromConfig(cfg config.ChatConfig) KeyProvider {
	if cfg.KMSRootKey != "" && cfg.WrappedDataKey != "" {
		return NewWrappedKeyProvider(cfg.KMSRootKey, cfg.WrappedDataKey)
	}
	return NewEnvKeyProvider(cfg.EncryptionKey)
}
