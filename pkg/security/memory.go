// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package security holds stage secret-key material in locked memory and
// zeroes it once a run no longer needs it.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"runtime"
	"sync"
)

// SecureString is a byte buffer pinned in memory where the platform allows
// it and overwritten on Zero or Destroy
type SecureString struct {
	mu     sync.RWMutex
	data   []byte
	locked bool
	zeroed bool
}

// NewSecureString copies data into a new SecureString. Failure to lock the
// pages is tolerated; restricted containers commonly refuse mlock.
func NewSecureString(data []byte) (*SecureString, error) {
	ss := &SecureString{data: make([]byte, len(data))}
	copy(ss.data, data)

	if len(ss.data) > 0 {
		ss.locked = lockMemory(ss.data) == nil
		runtime.SetFinalizer(ss, (*SecureString).destroy)
	}
	return ss, nil
}

// NewSecureStringFromString creates a SecureString from a regular string
func NewSecureStringFromString(s string) (*SecureString, error) {
	return NewSecureString([]byte(s))
}

// String returns the held value, or "" once zeroed
func (ss *SecureString) String() string {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if ss.data == nil || ss.zeroed {
		return ""
	}
	return string(ss.data)
}

// Bytes returns a copy of the held value
func (ss *SecureString) Bytes() []byte {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if ss.data == nil || ss.zeroed {
		return nil
	}
	result := make([]byte, len(ss.data))
	copy(result, ss.data)
	return result
}

// Len returns the length of the held value
func (ss *SecureString) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	if ss.zeroed {
		return 0
	}
	return len(ss.data)
}

// IsEmpty returns true if nothing is held
func (ss *SecureString) IsEmpty() bool {
	return ss.Len() == 0
}

// IsZeroed returns true if the value has been wiped
func (ss *SecureString) IsZeroed() bool {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.zeroed
}

// IsLocked reports whether the pages were pinned
func (ss *SecureString) IsLocked() bool {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.locked
}

// Zero overwrites the held value
func (ss *SecureString) Zero() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.zeroLocked()
	return nil
}

func (ss *SecureString) zeroLocked() {
	if ss.data == nil || ss.zeroed {
		return
	}
	SecureZero(ss.data)
	ss.zeroed = true
}

// Destroy zeroes the value and releases the page lock
func (ss *SecureString) Destroy() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.data == nil {
		return nil
	}

	ss.zeroLocked()
	if ss.locked {
		_ = unlockMemory(ss.data)
		ss.locked = false
	}
	ss.data = nil
	runtime.SetFinalizer(ss, nil)
	return nil
}

// destroy is the finalizer function
func (ss *SecureString) destroy() {
	_ = ss.Destroy()
}

// Equal compares two SecureStrings in constant time
func (ss *SecureString) Equal(other *SecureString) bool {
	if ss == nil || other == nil {
		return ss == other
	}
	a, b := ss.Bytes(), other.Bytes()
	defer SecureZero(a)
	defer SecureZero(b)
	return SecureCompare(a, b)
}

// SecureCompare performs a constant-time comparison of two byte slices
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// SecureZero overwrites a byte slice with random data, then zeros
func SecureZero(data []byte) {
	if len(data) == 0 {
		return
	}
	_, _ = rand.Read(data)
	for i := range data {
		data[i] = 0
	}
	runtime.KeepAlive(data)
}

// IsSecureMemoryAvailable checks whether pages can be pinned on this host
func IsSecureMemoryAvailable() bool {
	probe := make([]byte, 4096)
	if err := lockMemory(probe); err != nil {
		return false
	}
	_ = unlockMemory(probe)
	return true
}
