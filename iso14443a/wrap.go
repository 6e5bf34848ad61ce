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

package iso14443a

// Wrap packs f into a continuous raw bit stream for a front end that has
// its own parity handling turned off: each complete byte contributes its
// eight data bits followed by its parity bit, a trailing partial byte only
// its data bits. It returns the packed bytes and the stream length in bits.
func Wrap(f Frame) (raw []byte, rawBits int) {
	full := f.Len()
	rawBits = f.Bits + full
	raw = make([]byte, (rawBits+7)/8)

	pos := 0
	put := func(bit byte) {
		raw[pos/8] |= (bit & 1) << uint(pos%8)
		pos++
	}
	for i := 0; i < f.Bits; i++ {
		put(f.Data[i/8] >> uint(i%8))
		if i%8 == 7 && i/8 < len(f.Parity) {
			put(f.Parity[i/8])
		}
	}
	return raw, pos
}

// Unwrap is the inverse of Wrap for received streams. align is the bit
// position within the first byte at which reception started (non-zero only
// for split anticollision answers); the first align bits of raw are filler
// and are counted in rawBits. The returned frame counts those align bits in
// Bits and leaves them zero.
func Unwrap(raw []byte, rawBits, align int) Frame {
	if rawBits > len(raw)*8 {
		rawBits = len(raw) * 8
	}
	if rawBits <= align {
		return Frame{}
	}
	var (
		data   = make([]byte, 0, (rawBits+7)/8)
		parity []byte
		inByte = align
		bits   = align
	)
	if align > 0 {
		data = append(data, 0)
	}

	for pos := align; pos < rawBits; pos++ {
		bit := raw[pos/8] >> uint(pos%8) & 1
		if inByte == 8 {
			parity = append(parity, bit)
			inByte = 0
			continue
		}
		if inByte == 0 {
			data = append(data, 0)
		}
		data[len(data)-1] |= bit << uint(inByte)
		inByte++
		bits++
	}
	return Frame{Data: data, Parity: parity, Bits: bits}
}
