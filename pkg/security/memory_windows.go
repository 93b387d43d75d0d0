//go:build windows

// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package security

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// lockMemory pins pages using VirtualLock
func lockMemory(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&data[0])) //nolint:gosec // Required for Windows API
	if err := windows.VirtualLock(addr, uintptr(len(data))); err != nil {
		return fmt.Errorf("VirtualLock failed: %w", err)
	}
	return nil
}

// unlockMemory releases pages pinned by lockMemory
func unlockMemory(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&data[0])) //nolint:gosec // Required for Windows API
	if err := windows.VirtualUnlock(addr, uintptr(len(data))); err != nil {
		return fmt.Errorf("VirtualUnlock failed: %w", err)
	}
	return nil
}

// DisableCoreDumps is a no-op; Windows has no core dumps in the Unix sense
func DisableCoreDumps() error {
	return nil
}
