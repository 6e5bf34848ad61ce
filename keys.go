// go-mfclassic
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-mfclassic.
//
// go-mfclassic is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-mfclassic is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-mfclassic; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package mifare

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

// KeySize is the length of a MIFARE Classic key in bytes.
const KeySize = 6

// Key is a 6-byte sector key.
type Key [KeySize]byte

// Well known keys
var (
	// DefaultKey is the transport key blank tags ship with.
	DefaultKey = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	// NDEFKey is the public key of NFC Forum formatted sectors 1 and above.
	NDEFKey = Key{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7}
	// MADKey is the public Key A of the MIFARE Application Directory sector.
	MADKey = Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
)

// CommonKeys returns the keys worth trying on an unknown tag, most likely
// first. The slice is a fresh copy.
func CommonKeys() []Key {
	return []Key{
		DefaultKey,
		{0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		MADKey,
		NDEFKey,
		{0xB0, 0xB1, 0xB2, 0xB3, 0xB4, 0xB5},
	}
}

// ParseKey parses 12 hex digits. Spaces and colons are ignored.
func ParseKey(s string) (Key, error) {
	var k Key
	clean := strings.NewReplacer(" ", "", ":", "").Replace(s)
	if len(clean) != 2*KeySize {
		return k, fmt.Errorf("%w: key must be %d hex digits, got %d", ErrInvalidParameter, 2*KeySize, len(clean))
	}
	if _, err := hex.Decode(k[:], []byte(clean)); err != nil {
		return k, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	return k, nil
}

// String returns the key in hex. Callers decide whether it may be logged.
func (k Key) String() string {
	return strings.ToUpper(hex.EncodeToString(k[:]))
}

// Zero overwrites the key material.
func (k *Key) Zero() {
	for i := range k {
		k[i] = 0
	}
}

// KeyType selects which of a sector's two keys is used. Its value is the
// AUTH command byte.
type KeyType byte

const (
	// KeyA is the first key of a sector trailer.
	KeyA = KeyType(iso14443a.CmdAuthKeyA)
	// KeyB is the second key of a sector trailer.
	KeyB = KeyType(iso14443a.CmdAuthKeyB)
)

// Command returns the AUTH command byte for the key type.
func (kt KeyType) Command() byte {
	return byte(kt)
}

// Valid reports whether kt is KeyA or KeyB.
func (kt KeyType) Valid() bool {
	return kt == KeyA || kt == KeyB
}

func (kt KeyType) String() string {
	switch kt {
	case KeyA:
		return "A"
	case KeyB:
		return "B"
	default:
		return fmt.Sprintf("KeyType(0x%02X)", byte(kt))
	}
}

// ParseKeyType accepts "a", "A", "b" or "B".
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return KeyA, nil
	case "B":
		return KeyB, nil
	default:
		return 0, fmt.Errorf("%w: key type %q", ErrInvalidParameter, s)
	}
}
