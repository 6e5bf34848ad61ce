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

import (
	"fmt"

	"github.com/ZaparooProject/go-mfclassic/crypto1"
)

// After authentication every frame in both directions is encrypted with the
// session keystream. Each data byte is XORed with eight keystream bits and
// its parity bit with the filter output at the following byte boundary, so
// sender and receiver clock their ciphers identically.

// EncryptFrame encrypts data, including any CRC already appended.
func EncryptFrame(c *crypto1.Cipher, data []byte) Frame {
	f := Frame{
		Data:   make([]byte, len(data)),
		Parity: make([]byte, len(data)),
		Bits:   len(data) * 8,
	}
	for i, p := range data {
		f.Data[i], _ = c.EncryptByte(p)
		f.Parity[i] = OddParity(p) ^ c.Peek()
	}
	return f
}

// EncryptCommand appends CRC_A to data and encrypts the result.
func EncryptCommand(c *crypto1.Cipher, data []byte) Frame {
	return EncryptFrame(c, AppendCRC(data))
}

// DecryptFrame decrypts every complete byte of f and checks the decrypted
// parity. The cipher advances even when a parity error is found, so the
// session must be abandoned on error.
func DecryptFrame(c *crypto1.Cipher, f Frame) ([]byte, error) {
	n := f.Len()
	if len(f.Data) < n || len(f.Parity) < n {
		return nil, fmt.Errorf("%w: %d bits with %d data and %d parity bytes",
			ErrMalformedFrame, f.Bits, len(f.Data), len(f.Parity))
	}
	out := make([]byte, n)
	var bad error
	for i := 0; i < n; i++ {
		out[i] = c.DecryptByte(f.Data[i])
		if bad == nil && f.Parity[i]&1 != OddParity(out[i])^c.Peek() {
			bad = &FrameError{Index: i, Err: ErrParityMismatch}
		}
	}
	if bad != nil {
		return nil, bad
	}
	return out, nil
}

// DecryptCommand decrypts f, verifies the CRC and returns the payload.
func DecryptCommand(c *crypto1.Cipher, f Frame) ([]byte, error) {
	data, err := DecryptFrame(c, f)
	if err != nil {
		return nil, err
	}
	if len(data) < 3 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(data))
	}
	if !CheckCRC(data) {
		return nil, ErrChecksumMismatch
	}
	return data[:len(data)-2], nil
}

// EncryptNibble encrypts a 4-bit ACK/NAK with four keystream bits.
func EncryptNibble(c *crypto1.Cipher, v byte) Frame {
	var ks byte
	for i := 0; i < 4; i++ {
		ks |= c.Bit(0, crypto1.FeedPlain) << uint(i)
	}
	return NibbleFrame(v ^ ks)
}

// DecryptNibble decrypts a 4-bit ACK/NAK.
func DecryptNibble(c *crypto1.Cipher, f Frame) (byte, error) {
	v, err := Nibble(f)
	if err != nil {
		return 0, err
	}
	return EncryptNibble(c, v).Data[0], nil
}
