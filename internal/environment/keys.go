// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package environment

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/lfreleng-actions/e2e-test-kit/internal/config"
	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
)

// DefaultKeyringService is the keyring service holding local stage keys
const DefaultKeyringService = "e2e-test-kit"

// KeySource supplies the secret key material of a stage
type KeySource interface {
	SecretKey(stage config.Stage) (string, error)
}

// SecretKeyVariable returns the variable holding the key of stage
func SecretKeyVariable(stage config.Stage) (string, error) {
	if err := stage.Validate(); err != nil {
		return "", err
	}
	return SecretKeyPrefix + strings.ToUpper(stage.String()), nil
}

// KeyForStage selects the one secret key of stage from source. Any stage
// outside dev, uat and prod is a configuration error naming the stage.
func KeyForStage(stage config.Stage, source KeySource) (string, error) {
	variable, err := SecretKeyVariable(stage)
	if err != nil {
		return "", err
	}

	key, err := source.SecretKey(stage)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(key) == "" {
		return "", missingKey(variable, "empty")
	}
	return key, nil
}

// EnvKeySource reads SECRET_KEY_<STAGE> from the process environment
type EnvKeySource struct {
	Getenv func(string) string
}

// SecretKey implements KeySource
func (s EnvKeySource) SecretKey(stage config.Stage) (string, error) {
	variable, err := SecretKeyVariable(stage)
	if err != nil {
		return "", err
	}
	key := s.Getenv(variable)
	if key == "" {
		return "", missingKey(variable, "environment")
	}
	return key, nil
}

// KeyringKeySource reads the stage key from the OS keyring, with the
// variable name as the account
type KeyringKeySource struct {
	Service string
}

// SecretKey implements KeySource
func (s KeyringKeySource) SecretKey(stage config.Stage) (string, error) {
	variable, err := SecretKeyVariable(stage)
	if err != nil {
		return "", err
	}

	service := s.Service
	if service == "" {
		service = DefaultKeyringService
	}

	key, err := keyring.Get(service, variable)
	if err != nil {
		if stderrors.Is(err, keyring.ErrNotFound) {
			return "", missingKey(variable, "keyring")
		}
		return "", errors.NewConfigurationError(errors.ErrCodeMissingSecretKey,
			fmt.Sprintf("keyring lookup of %s failed", variable), err)
	}
	return key, nil
}

// StoreInKeyring saves a stage key for later local runs
func (s KeyringKeySource) StoreInKeyring(stage config.Stage, key string) error {
	variable, err := SecretKeyVariable(stage)
	if err != nil {
		return err
	}
	service := s.Service
	if service == "" {
		service = DefaultKeyringService
	}
	return keyring.Set(service, variable, key)
}

// ChainKeySource tries each source in order and returns the first key found
type ChainKeySource []KeySource

// SecretKey implements KeySource
func (c ChainKeySource) SecretKey(stage config.Stage) (string, error) {
	if err := stage.Validate(); err != nil {
		return "", err
	}

	var misses []error
	for _, source := range c {
		key, err := source.SecretKey(stage)
		if err == nil && key != "" {
			return key, nil
		}
		// A broken stage is not a lookup miss
		if errors.IsErrorCode(err, errors.ErrCodeInvalidStage) {
			return "", err
		}
		if err != nil {
			misses = append(misses, err)
		}
	}

	variable, _ := SecretKeyVariable(stage)
	return "", errors.NewConfigurationError(errors.ErrCodeMissingSecretKey,
		fmt.Sprintf("secret key %s not found in any source", variable), stderrors.Join(misses...)).
		WithContext("variable", variable).
		WithSuggestions(fmt.Sprintf("Export %s or run: e2e-kit key store %s -", variable, stage))
}

// KeySourceFor returns the key lookup order of a run: CI runners read the
// environment only, local runs fall back to the keyring
func KeySourceFor(ci bool, getenv func(string) string, keyringService string) KeySource {
	env := EnvKeySource{Getenv: getenv}
	if ci {
		return env
	}
	return ChainKeySource{env, KeyringKeySource{Service: keyringService}}
}

func missingKey(variable, source string) error {
	return errors.NewConfigurationError(errors.ErrCodeMissingSecretKey,
		fmt.Sprintf("secret key %s not found in %s", variable, source), nil).
		WithContext("variable", variable)
}
