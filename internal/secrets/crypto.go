// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package secrets encrypts and decrypts individual configuration values with
// a per-stage secret key. Encrypted values carry the "enc:" marker; anything
// without the marker is plaintext and passes through untouched.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/crypto/argon2"

	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/logger"
)

// Marker prefixes every encrypted value
const Marker = "enc:"

// Envelope layout: version || salt || nonce || ciphertext+tag
const (
	envelopeVersion byte = 1
	SaltSize             = 16
	NonceSize            = 12
	KeySize              = 32
	tagSize              = 16
	headerSize           = 1 + SaltSize + NonceSize
)

// Argon2id parameters for deriving the AES key from stage key material
const (
	kdfTime    uint32 = 1
	kdfMemory  uint32 = 64 * 1024
	kdfThreads uint8  = 4
)

// Result labels reported to a Recorder
const (
	ResultOK          = "ok"
	ResultFailed      = "failed"
	ResultPassthrough = "passthrough"
)

// Recorder receives decrypt outcomes; monitoring.Metrics implements it
type Recorder interface {
	ObserveDecrypt(result string)
}

// Metrics tracks crypto activity for the lifetime of a Service
type Metrics struct {
	Encryptions       int64
	Decryptions       int64
	DecryptFailures   int64
	PassthroughValues int64
}

// Service performs envelope encryption of single string values
type Service struct {
	logger   *logger.Logger
	recorder Recorder
	metrics  Metrics
}

// Option configures a Service
type Option func(*Service)

// WithRecorder reports decrypt outcomes to r
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// NewService creates a crypto service
func NewService(log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDiscard()
	}
	s := &Service{logger: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsEncrypted reports whether value carries the encrypted marker
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, Marker)
}

// IsEncrypted reports whether value carries the encrypted marker
func (s *Service) IsEncrypted(value string) bool {
	return IsEncrypted(value)
}

// Encrypt seals plaintext under keyMaterial and returns a marked envelope
func (s *Service) Encrypt(plaintext, keyMaterial string) (string, error) {
	if keyMaterial == "" {
		return "", missingKeyError("Encrypt")
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.NewCredentialError(errors.ErrCodeEncryptionFailed, "failed to generate salt", err).WithOp("Encrypt")
	}

	gcm, err := newGCM(keyMaterial, salt)
	if err != nil {
		return "", errors.NewCredentialError(errors.ErrCodeEncryptionFailed, "failed to initialize cipher", err).WithOp("Encrypt")
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.NewCredentialError(errors.ErrCodeEncryptionFailed, "failed to generate nonce", err).WithOp("Encrypt")
	}

	envelope := make([]byte, 0, headerSize+len(plaintext)+tagSize)
	envelope = append(envelope, envelopeVersion)
	envelope = append(envelope, salt...)
	envelope = append(envelope, nonce...)
	envelope = gcm.Seal(envelope, nonce, []byte(plaintext), nil)

	atomic.AddInt64(&s.metrics.Encryptions, 1)
	s.logger.Debug("Encrypted value", "envelope_size", len(envelope))

	return Marker + base64.StdEncoding.EncodeToString(envelope), nil
}

// Decrypt opens a marked envelope. A malformed envelope or a key that fails
// GCM authentication is a decryption error; partial plaintext is never returned.
func (s *Service) Decrypt(value, keyMaterial string) (string, error) {
	plaintext, err := s.decrypt(value, keyMaterial)
	if err != nil {
		atomic.AddInt64(&s.metrics.DecryptFailures, 1)
		s.observe(ResultFailed)
		return "", err
	}
	atomic.AddInt64(&s.metrics.Decryptions, 1)
	s.observe(ResultOK)
	return plaintext, nil
}

func (s *Service) decrypt(value, keyMaterial string) (string, error) {
	if keyMaterial == "" {
		return "", missingKeyError("Decrypt")
	}
	if !IsEncrypted(value) {
		return "", malformed("value is missing the encrypted marker", nil)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Marker))
	if err != nil {
		return "", malformed("envelope is not valid base64", err)
	}
	if len(raw) < headerSize+tagSize {
		return "", malformed(fmt.Sprintf("envelope too short: %d bytes", len(raw)), nil)
	}
	if raw[0] != envelopeVersion {
		return "", malformed(fmt.Sprintf("unsupported envelope version %d", raw[0]), nil)
	}

	salt := raw[1 : 1+SaltSize]
	nonce := raw[1+SaltSize : headerSize]
	ciphertext := raw[headerSize:]

	gcm, err := newGCM(keyMaterial, salt)
	if err != nil {
		return "", errors.NewCredentialError(errors.ErrCodeDecryptionFailed, "failed to initialize cipher", err).WithOp("Decrypt")
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.NewCredentialError(errors.ErrCodeDecryptionFailed,
			"decryption failed (authentication error): wrong stage key or tampered value", err).WithOp("Decrypt")
	}
	return string(plaintext), nil
}

// ResolveValue decrypts marked values and passes every other value through
func (s *Service) ResolveValue(value, keyMaterial string) (string, error) {
	if !IsEncrypted(value) {
		atomic.AddInt64(&s.metrics.PassthroughValues, 1)
		s.observe(ResultPassthrough)
		return value, nil
	}
	return s.Decrypt(value, keyMaterial)
}

// GetMetrics returns a snapshot of crypto activity
func (s *Service) GetMetrics() Metrics {
	return Metrics{
		Encryptions:       atomic.LoadInt64(&s.metrics.Encryptions),
		Decryptions:       atomic.LoadInt64(&s.metrics.Decryptions),
		DecryptFailures:   atomic.LoadInt64(&s.metrics.DecryptFailures),
		PassthroughValues: atomic.LoadInt64(&s.metrics.PassthroughValues),
	}
}

func (s *Service) observe(result string) {
	if s.recorder != nil {
		s.recorder.ObserveDecrypt(result)
	}
}

// newGCM derives the AES-256 key for salt and builds the AEAD
func newGCM(keyMaterial string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(keyMaterial), salt, kdfTime, kdfMemory, kdfThreads, KeySize)
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func missingKeyError(op string) error {
	return errors.NewConfigurationError(errors.ErrCodeMissingSecretKey, "secret key material is empty", nil).
		WithOp(op).
		WithSuggestions("Set SECRET_KEY_DEV, SECRET_KEY_UAT or SECRET_KEY_PROD for the active stage")
}

func malformed(message string, cause error) error {
	return errors.NewCredentialError(errors.ErrCodeMalformedEnvelope, message, cause).WithOp("Decrypt")
}
