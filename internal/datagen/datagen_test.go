// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package datagen

import (
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID(t *testing.T) {
	first := ID()
	second := ID()

	_, err := ulid.Parse(first)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.LessOrEqual(t, first[:10], second[:10])
}

func TestUUID(t *testing.T) {
	parsed, err := uuid.Parse(UUID())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
}

func TestUsernameAndEmail(t *testing.T) {
	username := Username("buyer")
	assert.Regexp(t, `^buyer_[0-9a-z]{10}$`, username)
	assert.True(t, strings.HasPrefix(Username(""), "user_"))

	email := Email("buyer", "portal.example.test")
	assert.Regexp(t, `^buyer_[0-9a-z]{10}@portal\.example\.test$`, email)
	assert.True(t, strings.HasSuffix(Email("x", ""), "@example.test"))
}

func TestName(t *testing.T) {
	assert.Regexp(t, `^QA Customer [0-9a-z]{6}$`, Name("QA Customer"))
	assert.True(t, strings.HasPrefix(Name(""), "QA "))
}

func TestPhone(t *testing.T) {
	pattern := regexp.MustCompile(`^\+1[2-9]\d{2}55501\d{2}$`)
	for i := 0; i < 50; i++ {
		assert.Regexp(t, pattern, Phone())
	}
}

func TestPassword(t *testing.T) {
	tests := []struct {
		requested int
		want      int
	}{
		{0, MinPasswordLength},
		{4, MinPasswordLength},
		{12, 12},
		{64, 64},
	}

	for _, tt := range tests {
		password := Password(tt.requested)
		assert.Len(t, password, tt.want)
		assert.True(t, strings.ContainsAny(password, lower), password)
		assert.True(t, strings.ContainsAny(password, upper), password)
		assert.True(t, strings.ContainsAny(password, digits), password)
		assert.True(t, strings.ContainsAny(password, symbols), password)
	}

	assert.NotEqual(t, Password(16), Password(16))
}

func TestGeneratorsAreUniqueAcrossGoroutines(t *testing.T) {
	const workers, perWorker = 8, 200

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				name := Username("load")
				mu.Lock()
				seen[name] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}
