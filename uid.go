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
	"strings"
)

// UID is a tag identifier of 4, 7 or 10 bytes.
type UID []byte

// Valid reports whether the UID has one of the three legal sizes.
func (u UID) Valid() bool {
	switch len(u) {
	case 4, 7, 10:
		return true
	default:
		return false
	}
}

// Nuid returns the 32 bits CRYPTO1 is seeded with: the UID itself for
// single size UIDs, the last four bytes otherwise.
func (u UID) Nuid() [4]byte {
	var n [4]byte
	if len(u) >= 4 {
		copy(n[:], u[len(u)-4:])
	}
	return n
}

func (u UID) String() string {
	return strings.ToUpper(hex.EncodeToString(u))
}

// Target describes a selected tag.
type Target struct {
	UID      UID
	ATQA     [2]byte
	SAK      byte
	Capacity Capacity
}
