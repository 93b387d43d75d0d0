// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package secrets

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lfreleng-actions/e2e-test-kit/internal/errors"
	"github.com/lfreleng-actions/e2e-test-kit/internal/fixtures"
)

type recordingObserver struct {
	results []string
}

func (r *recordingObserver) ObserveDecrypt(result string) {
	r.results = append(r.results, result)
}

func TestRoundTrip(t *testing.T) {
	svc := NewService(nil)

	tests := []string{
		"plainpass",
		"",
		"unicode-パスワード",
		strings.Repeat("x", 4096),
	}

	for _, plaintext := range tests {
		envelope, err := svc.Encrypt(plaintext, fixtures.DummyKeyUAT)
		require.NoError(t, err)
		assert.True(t, IsEncrypted(envelope))

		decrypted, err := svc.Decrypt(envelope, fixtures.DummyKeyUAT)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptUsesFreshSaltAndNonce(t *testing.T) {
	svc := NewService(nil)

	first, err := svc.Encrypt("same", fixtures.DummyKeyDev)
	require.NoError(t, err)
	second, err := svc.Encrypt("same", fixtures.DummyKeyDev)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecryptWithWrongKeyFailsClosed(t *testing.T) {
	svc := NewService(nil)

	envelope, err := svc.Encrypt("qa-automation-user", fixtures.DummyKeyUAT)
	require.NoError(t, err)

	plaintext, err := svc.Decrypt(envelope, fixtures.DummyKeyProd)
	require.Error(t, err)
	assert.Empty(t, plaintext)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDecryptionFailed))
	assert.True(t, errors.IsCategory(err, errors.CategoryCredential))
	assert.False(t, errors.IsRecoverableError(err))
}

func TestDecryptRejectsMalformedEnvelopes(t *testing.T) {
	svc := NewService(nil)

	valid, err := svc.Encrypt("value", fixtures.DummyKeyDev)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(valid, Marker))
	require.NoError(t, err)

	wrongVersion := append([]byte{}, raw...)
	wrongVersion[0] = 9

	tampered := append([]byte{}, raw...)
	tampered[len(tampered)-1] ^= 0xFF

	tests := []struct {
		name  string
		value string
		code  errors.ErrorCode
	}{
		{"no marker", "plain", errors.ErrCodeMalformedEnvelope},
		{"not base64", "enc:***", errors.ErrCodeMalformedEnvelope},
		{"too short", Marker + base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), errors.ErrCodeMalformedEnvelope},
		{"unknown version", Marker + base64.StdEncoding.EncodeToString(wrongVersion), errors.ErrCodeMalformedEnvelope},
		{"tampered ciphertext", Marker + base64.StdEncoding.EncodeToString(tampered), errors.ErrCodeDecryptionFailed},
		{"short marked value", "enc:AbCdEf==", errors.ErrCodeMalformedEnvelope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Decrypt(tt.value, fixtures.DummyKeyDev)
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, tt.code), "got %v", err)
		})
	}
}

func TestEmptyKeyIsConfigurationError(t *testing.T) {
	svc := NewService(nil)

	_, err := svc.Encrypt("value", "")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeMissingSecretKey))

	_, err = svc.Decrypt("enc:AAAA", "")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestResolveValue(t *testing.T) {
	observer := &recordingObserver{}
	svc := NewService(nil, WithRecorder(observer))

	// Plaintext never touches the decrypt path, even without a key
	for _, plain := range []string{"plainpass", "", "ENC:upper-case-is-not-a-marker", " enc:leading-space"} {
		resolved, err := svc.ResolveValue(plain, "")
		require.NoError(t, err)
		assert.Equal(t, plain, resolved)
	}

	envelope, err := svc.Encrypt("secret-user", fixtures.DummyKeyUAT)
	require.NoError(t, err)
	resolved, err := svc.ResolveValue(envelope, fixtures.DummyKeyUAT)
	require.NoError(t, err)
	assert.Equal(t, "secret-user", resolved)

	_, err = svc.ResolveValue(envelope, fixtures.DummyKeyDev)
	require.Error(t, err)

	metrics := svc.GetMetrics()
	assert.Equal(t, int64(4), metrics.PassthroughValues)
	assert.Equal(t, int64(1), metrics.Decryptions)
	assert.Equal(t, int64(1), metrics.DecryptFailures)
	assert.Equal(t, int64(1), metrics.Encryptions)
	assert.Equal(t, []string{
		ResultPassthrough, ResultPassthrough, ResultPassthrough, ResultPassthrough,
		ResultOK, ResultFailed,
	}, observer.results)
}
