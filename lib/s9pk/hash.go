// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package s9pk

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// HashSize is the length of a content hash in bytes. Hashes are
// exchanged as lowercase hex, so their string form is twice as long.
const HashSize = 32

// HashReader returns the lowercase hex BLAKE3 hash of every byte r
// produces, and the number of bytes read.
func HashReader(r io.Reader) (string, int64, error) {
	hasher := blake3.New()
	count, err := io.Copy(hasher, r)
	if err != nil {
		return "", count, fmt.Errorf("hashing archive: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), count, nil
}

// ValidHash reports whether s looks like a content hash: 64 lowercase
// hex digits.
func ValidHash(s string) bool {
	if len(s) != 2*HashSize {
		return false
	}
	for index := 0; index < len(s); index++ {
		c := s[index]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
