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

package tagops

import (
	"errors"
	"fmt"

	mifare "github.com/ZaparooProject/go-mfclassic"
)

// ErrInvalidAccessBits means the inverted copies in a trailer disagree.
var ErrInvalidAccessBits = errors.New("access bits do not match their inverted copy")

// AccessCondition is the C1 C2 C3 triple of one block, C1 in bit 2.
type AccessCondition byte

// Transport configuration of blank tags.
var (
	DefaultDataAccess    AccessCondition = 0b000
	DefaultTrailerAccess AccessCondition = 0b001
)

// Trailer is a decoded sector trailer. Access holds the conditions of the
// sector's data groups 0..2 and of the trailer itself at index 3.
type Trailer struct {
	KeyA   mifare.Key
	KeyB   mifare.Key
	Access [4]AccessCondition
	GPB    byte
}

// ParseTrailer decodes the trailer block b.
func ParseTrailer(b mifare.Block) (Trailer, error) {
	var t Trailer
	copy(t.KeyA[:], b[0:6])
	copy(t.KeyB[:], b[10:16])
	t.GPB = b[9]

	c1 := b[7] >> 4
	c2 := b[8] & 0x0F
	c3 := b[8] >> 4
	if ^b[6]&0x0F != c1 || ^b[6]>>4 != c2 || ^b[7]&0x0F != c3 {
		return t, fmt.Errorf("%w: % X", ErrInvalidAccessBits, b[6:9])
	}
	for i := range t.Access {
		t.Access[i] = AccessCondition((c1>>uint(i)&1)<<2 | (c2>>uint(i)&1)<<1 | c3>>uint(i)&1)
	}
	return t, nil
}

// EncodeAccessBits packs four access conditions into trailer bytes 6..8.
func EncodeAccessBits(access [4]AccessCondition) [3]byte {
	var c1, c2, c3 byte
	for i, a := range access {
		c1 |= byte(a>>2&1) << uint(i)
		c2 |= byte(a>>1&1) << uint(i)
		c3 |= byte(a&1) << uint(i)
	}
	return [3]byte{
		(^c2&0x0F)<<4 | ^c1&0x0F,
		c1<<4 | ^c3&0x0F,
		c3<<4 | c2,
	}
}

// Block encodes t as a trailer block.
func (t Trailer) Block() mifare.Block {
	var b mifare.Block
	copy(b[0:6], t.KeyA[:])
	ac := EncodeAccessBits(t.Access)
	copy(b[6:9], ac[:])
	b[9] = t.GPB
	copy(b[10:16], t.KeyB[:])
	return b
}

// DataGroup returns the access group index of the block at offset within
// its sector. Sectors of 16 blocks group five blocks per condition.
func DataGroup(sector, offset int) int {
	if mifare.BlocksInSector(sector) == 4 || offset == 15 {
		return min(offset, 3)
	}
	return offset / 5
}

// CanRead reports whether a data group with condition a may be read with
// keyType.
func (a AccessCondition) CanRead(keyType mifare.KeyType) bool {
	switch a {
	case 0b000, 0b010, 0b100, 0b110, 0b001:
		return true
	case 0b011, 0b101:
		return keyType == mifare.KeyB
	default:
		return false
	}
}

// CanWrite reports whether a data group with condition a may be written
// with keyType.
func (a AccessCondition) CanWrite(keyType mifare.KeyType) bool {
	switch a {
	case 0b000:
		return true
	case 0b100, 0b110, 0b011:
		return keyType == mifare.KeyB
	default:
		return false
	}
}

// KeyBReadable reports whether the trailer condition a exposes Key B, in
// which case Key B cannot be used for authentication.
func (a AccessCondition) KeyBReadable() bool {
	return a == 0b000 || a == 0b010 || a == 0b001
}

func (a AccessCondition) String() string {
	return fmt.Sprintf("C1C2C3=%03b", byte(a))
}
