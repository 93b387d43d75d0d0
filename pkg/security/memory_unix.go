//go:build !windows

// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package security

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// lockMemory pins pages using mlock
func lockMemory(data []byte) error {
	if err := unix.Mlock(data); err != nil {
		return fmt.Errorf("mlock failed: %w", err)
	}
	return nil
}

// unlockMemory releases pages pinned by lockMemory
func unlockMemory(data []byte) error {
	if err := unix.Munlock(data); err != nil {
		return fmt.Errorf("munlock failed: %w", err)
	}
	return nil
}

// DisableCoreDumps sets RLIMIT_CORE to zero so a crashing worker cannot
// write key material to disk
func DisableCoreDumps() error {
	rlimit := unix.Rlimit{Cur: 0, Max: 0}
	if err := unix.Setrlimit(unix.RLIMIT_CORE, &rlimit); err != nil {
		return fmt.Errorf("failed to disable core dumps: %w", err)
	}
	return nil
}
