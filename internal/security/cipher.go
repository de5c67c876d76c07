package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/noteduco342/courtside-chat/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	// Prefix marks bodies written by the cipher. Rows without it predate encryption.
	Prefix  = "enc:v1:"
	ivSize  = 12
	tagSize = 16
)

// Failure reasons reported by Open and counted on fallback.
const (
	ReasonLegacyPlaintext = "legacy_plaintext"
	ReasonMalformed       = "malformed"
	ReasonAuthFailed      = "auth_failed"
)

// DecodeFailure explains why a stored body could not be decrypted.
type DecodeFailure struct {
	Reason string
	Err    error
}

func (e *DecodeFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode failure (%s): %v", e.Reason, e.Err)
	}
	return "decode failure (" + e.Reason + ")"
}

func (e *DecodeFailure) Unwrap() error { return e.Err }

// ContentCipher encrypts message bodies at rest with AES-256-GCM.
type ContentCipher struct {
	aead cipher.AEAD
	log  zerolog.Logger
	rand io.Reader
}

func NewContentCipher(key []byte, log zerolog.Logger) (*ContentCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("content key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, err
	}
	return &ContentCipher{aead: aead, log: log, rand: rand.Reader}, nil
}

// Encrypt seals plaintext into the stored format. Empty input stays empty.
func (c *ContentCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	data, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	enc := base64.StdEncoding
	return Prefix + enc.EncodeToString(iv) + ":" + enc.EncodeToString(tag) + ":" + enc.EncodeToString(data), nil
}

// Open decrypts a stored body and reports a *DecodeFailure when it cannot.
func (c *ContentCipher) Open(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	if !strings.HasPrefix(stored, Prefix) {
		return "", &DecodeFailure{Reason: ReasonLegacyPlaintext}
	}

	parts := strings.Split(strings.TrimPrefix(stored, Prefix), ":")
	if len(parts) != 3 {
		return "", &DecodeFailure{Reason: ReasonMalformed, Err: fmt.Errorf("expected 3 segments, got %d", len(parts))}
	}

	enc := base64.StdEncoding
	iv, err := enc.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", &DecodeFailure{Reason: ReasonMalformed, Err: errors.New("bad iv")}
	}
	tag, err := enc.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", &DecodeFailure{Reason: ReasonMalformed, Err: errors.New("bad tag")}
	}
	data, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", &DecodeFailure{Reason: ReasonMalformed, Err: errors.New("bad ciphertext")}
	}

	sealed := make([]byte, 0, len(data)+len(tag))
	sealed = append(sealed, data...)
	sealed = append(sealed, tag...)
	plain, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", &DecodeFailure{Reason: ReasonAuthFailed, Err: err}
	}
	return string(plain), nil
}

// Decrypt is the legacy-tolerant read path: bodies that cannot be decrypted are
// returned unchanged. Each fallback is logged and counted.
func (c *ContentCipher) Decrypt(stored string) string {
	plain, err := c.Open(stored)
	if err == nil {
		return plain
	}

	reason := ReasonMalformed
	var df *DecodeFailure
	if errors.As(err, &df) {
		reason = df.Reason
	}
	metrics.DecryptFallbacks.WithLabelValues(reason).Inc()

	if reason == ReasonLegacyPlaintext {
		c.log.Debug().Str("reason", reason).Int("len", len(stored)).Msg("returning stored body as plaintext")
	} else {
		c.log.Warn().Err(err).Str("reason", reason).Int("len", len(stored)).Msg("decrypt failed, returning stored body")
	}
	return stored
}
