// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

// Package datagen produces unique values for test entities. Every function
// is independent; there is no shared generator state between workers.
package datagen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// MinPasswordLength is the shortest password Password will produce
const MinPasswordLength = 8

const (
	lower   = "abcdefghijkmnopqrstuvwxyz"
	upper   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digits  = "23456789"
	symbols = "!@#$%^&*-_"
)

// ID returns a lexicographically sortable unique id
func ID() string {
	return ulid.Make().String()
}

// UUID returns a random version 4 UUID
func UUID() string {
	return uuid.NewString()
}

// suffix is a short lowercase unique token. The ULID entropy tail keeps
// values unique across parallel workers started in the same millisecond.
func suffix() string {
	id := strings.ToLower(ulid.Make().String())
	return id[len(id)-10:]
}

// Username returns prefix_<token>
func Username(prefix string) string {
	if prefix == "" {
		prefix = "user"
	}
	return fmt.Sprintf("%s_%s", prefix, suffix())
}

// Email returns a unique address at domain
func Email(prefix, domain string) string {
	if domain == "" {
		domain = "example.test"
	}
	return fmt.Sprintf("%s@%s", Username(prefix), domain)
}

// Name returns a display name such as "QA Customer 4k2m9x"
func Name(prefix string) string {
	if prefix == "" {
		prefix = "QA"
	}
	return fmt.Sprintf("%s %s", prefix, suffix()[4:])
}

// Phone returns an E.164 number in the fictional 555-0100..0199 range
func Phone() string {
	return fmt.Sprintf("+1%03d5550%03d", 200+randomInt(800), 100+randomInt(100))
}

// Password returns a random password of length n containing every
// character class. n below MinPasswordLength is raised to it.
func Password(n int) string {
	if n < MinPasswordLength {
		n = MinPasswordLength
	}

	classes := []string{lower, upper, digits, symbols}
	all := strings.Join(classes, "")

	out := make([]byte, n)
	for i, class := range classes {
		out[i] = class[randomInt(len(class))]
	}
	for i := len(classes); i < n; i++ {
		out[i] = all[randomInt(len(all))]
	}

	// Fisher-Yates so the guaranteed classes are not always first
	for i := n - 1; i > 0; i-- {
		j := randomInt(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func randomInt(limit int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return int(n.Int64())
}
