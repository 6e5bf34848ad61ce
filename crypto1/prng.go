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

package crypto1

import "math/bits"

// Successor advances the tag's 16-bit nonce LFSR n steps from x. Nonces are
// handled in transmission byte order (big-endian as read off the air).
//
// The reader's answer to a tag nonce is Successor(nt, 64) and the tag's
// answer is Successor(nt, 96).
func Successor(x uint32, n uint) uint32 {
	x = bits.ReverseBytes32(x)
	for ; n > 0; n-- {
		x = x>>1 | (x>>16^x>>18^x>>19^x>>21)<<31
	}
	return bits.ReverseBytes32(x)
}

// ReaderAnswer returns the value Ar the reader must prove for tag nonce nt.
func ReaderAnswer(nt uint32) uint32 { return Successor(nt, 64) }

// TagAnswer returns the value At the tag proves back for tag nonce nt.
func TagAnswer(nt uint32) uint32 { return Successor(nt, 96) }
