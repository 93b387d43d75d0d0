// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package environment

import (
	"fmt"
	"strings"
	"sync"

	"github.com/lfreleng-actions/e2e-test-kit/internal/config"
	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/secrets"
	"github.com/lfreleng-actions/e2e-test-kit/pkg/security"
)

// VerifyCredentials fails with an invalid credentials error naming context
// when either field is empty
func VerifyCredentials(creds Credentials, context string) error {
	var empty []string
	if strings.TrimSpace(creds.Username) == "" {
		empty = append(empty, "username")
	}
	if strings.TrimSpace(creds.Password) == "" {
		empty = append(empty, "password")
	}
	if len(empty) == 0 {
		return nil
	}

	return errors.NewCredentialError(errors.ErrCodeInvalidCredentials,
		fmt.Sprintf("invalid credentials for %s: empty %s", context, strings.Join(empty, " and ")), nil).
		WithOp(context)
}

// Try runs fn and wraps any failure, including a panic, as a resolution
// error tagged with op
func Try[T any](op string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = errors.NewResolutionError(op,
				errors.New(errors.ErrCodePanicRecovered, fmt.Sprintf("panic: %v", r)))
		}
	}()

	result, err = fn()
	if err != nil {
		var zero T
		return zero, errors.NewResolutionError(op, err)
	}
	return result, nil
}

// SecretResolver decrypts marked values with the key of one stage. The key
// is fetched on first use and held in locked memory until Close.
type SecretResolver struct {
	stage config.Stage
	keys  KeySource
	svc   *secrets.Service

	mu     sync.Mutex
	key    *security.SecureString
	closed bool
}

// NewSecretResolver creates a resolver for stage
func NewSecretResolver(stage config.Stage, keys KeySource, svc *secrets.Service) *SecretResolver {
	return &SecretResolver{stage: stage, keys: keys, svc: svc}
}

// Stage returns the stage whose key decrypts values
func (r *SecretResolver) Stage() config.Stage {
	return r.stage
}

// Resolve returns value unchanged unless it carries the encrypted marker,
// in which case it is decrypted with the stage key
func (r *SecretResolver) Resolve(value string) (string, error) {
	if !secrets.IsEncrypted(value) {
		return r.svc.ResolveValue(value, "")
	}

	key, err := r.keyMaterial()
	if err != nil {
		return "", err
	}
	defer security.SecureZero(key)

	return r.svc.ResolveValue(value, string(key))
}

// Encrypt seals value with the stage key
func (r *SecretResolver) Encrypt(value string) (string, error) {
	key, err := r.keyMaterial()
	if err != nil {
		return "", err
	}
	defer security.SecureZero(key)

	return r.svc.Encrypt(value, string(key))
}

func (r *SecretResolver) keyMaterial() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.New(errors.ErrCodeInternalError, "secret resolver is closed").WithOp("Resolve")
	}

	if r.key == nil {
		key, err := KeyForStage(r.stage, r.keys)
		if err != nil {
			return nil, err
		}
		held, err := security.NewSecureStringFromString(key)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternalError, "failed to protect key material", err)
		}
		r.key = held
	}
	return r.key.Bytes(), nil
}

// Close zeroes the held key material
func (r *SecretResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.key == nil {
		return nil
	}
	err := r.key.Destroy()
	r.key = nil
	return err
}

var _ ValueResolver = (*SecretResolver)(nil)
