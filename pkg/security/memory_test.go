// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package security

import (
	"bytes"
	"sync"
	"testing"
)

func TestNewSecureString(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"stage key", []byte("uat-secret-key-material")},
		{"binary", []byte{0x00, 0x01, 0xFF, 0xFE}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ss, err := NewSecureString(tt.data)
			if err != nil {
				t.Fatalf("NewSecureString() error = %v", err)
			}
			defer func() { _ = ss.Destroy() }()

			if ss.Len() != len(tt.data) {
				t.Errorf("Len() = %d, want %d", ss.Len(), len(tt.data))
			}
			if !bytes.Equal(ss.Bytes(), tt.data) && len(tt.data) > 0 {
				t.Errorf("Bytes() did not round trip")
			}
		})
	}
}

func TestSecureStringCopiesInput(t *testing.T) {
	input := []byte("dev-key")
	ss, err := NewSecureString(input)
	if err != nil {
		t.Fatalf("NewSecureString() error = %v", err)
	}
	defer func() { _ = ss.Destroy() }()

	input[0] = 'X'
	if ss.String() != "dev-key" {
		t.Errorf("SecureString shares memory with its input")
	}

	out := ss.Bytes()
	out[0] = 'Y'
	if ss.String() != "dev-key" {
		t.Errorf("Bytes() returned internal buffer")
	}
}

func TestZero(t *testing.T) {
	ss, err := NewSecureStringFromString("prod-key-material")
	if err != nil {
		t.Fatalf("NewSecureStringFromString() error = %v", err)
	}

	if err := ss.Zero(); err != nil {
		t.Fatalf("Zero() error = %v", err)
	}
	if !ss.IsZeroed() {
		t.Error("expected zeroed state")
	}
	if ss.String() != "" || ss.Bytes() != nil || !ss.IsEmpty() {
		t.Error("zeroed SecureString still exposes data")
	}

	// Zero and Destroy are idempotent
	if err := ss.Zero(); err != nil {
		t.Errorf("second Zero() error = %v", err)
	}
	if err := ss.Destroy(); err != nil {
		t.Errorf("Destroy() error = %v", err)
	}
	if err := ss.Destroy(); err != nil {
		t.Errorf("second Destroy() error = %v", err)
	}
}

func TestEqual(t *testing.T) {
	a, _ := NewSecureStringFromString("same")
	b, _ := NewSecureStringFromString("same")
	c, _ := NewSecureStringFromString("different")
	defer func() { _ = a.Destroy(); _ = b.Destroy(); _ = c.Destroy() }()

	if !a.Equal(b) {
		t.Error("expected equal values to compare equal")
	}
	if a.Equal(c) {
		t.Error("expected different values to compare unequal")
	}
	if a.Equal(nil) {
		t.Error("expected nil comparison to be false")
	}
	var nilSS *SecureString
	if !nilSS.Equal(nil) {
		t.Error("expected two nils to compare equal")
	}
}

func TestSecureZero(t *testing.T) {
	data := []byte("sensitive")
	SecureZero(data)
	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %x", i, b)
		}
	}
	SecureZero(nil)
}

func TestSecureCompare(t *testing.T) {
	if !SecureCompare([]byte("abc"), []byte("abc")) {
		t.Error("expected equal slices to match")
	}
	if SecureCompare([]byte("abc"), []byte("abcd")) {
		t.Error("expected different lengths not to match")
	}
}

func TestConcurrentAccess(t *testing.T) {
	ss, err := NewSecureStringFromString("shared-key")
	if err != nil {
		t.Fatalf("NewSecureStringFromString() error = %v", err)
	}
	defer func() { _ = ss.Destroy() }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if v := ss.String(); v != "shared-key" && v != "" {
					t.Errorf("unexpected value %q", v)
				}
			}
		}()
	}
	wg.Wait()
}

func TestIsSecureMemoryAvailable(t *testing.T) {
	// Result depends on RLIMIT_MEMLOCK; only assert it does not panic
	_ = IsSecureMemoryAvailable()
}
