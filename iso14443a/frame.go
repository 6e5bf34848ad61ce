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

import "fmt"

// Frame is a bit oriented air frame. Data bits go out least significant bit
// first. Parity holds one value (0 or 1) per complete byte of Data and is
// empty for short frames. Bits is the number of valid data bits; when it is
// not a multiple of eight the last byte is partial and carries no parity.
type Frame struct {
	Data   []byte
	Parity []byte
	Bits   int
}

// Len returns the number of complete bytes in the frame.
func (f Frame) Len() int {
	return f.Bits / 8
}

// IsShort reports whether f is a 7-bit short frame.
func (f Frame) IsShort() bool {
	return f.Bits == 7
}

func (f Frame) String() string {
	return fmt.Sprintf("%d bits % X", f.Bits, f.Data)
}

// OddParity returns the parity bit that makes b plus the bit odd.
func OddParity(b byte) byte {
	b ^= b >> 4
	b ^= b >> 2
	b ^= b >> 1
	return ^b & 1
}

// EncodeByte returns b together with its odd parity bit.
func EncodeByte(b byte) (data, parity byte) {
	return b, OddParity(b)
}

// ShortFrame returns the 7-bit frame for REQA, WUPA and the like. Short
// frames carry neither parity nor CRC.
func ShortFrame(cmd byte) Frame {
	return Frame{Data: []byte{cmd & 0x7F}, Bits: 7}
}

// Encode frames data as whole bytes with odd parity.
func Encode(data []byte) Frame {
	f := Frame{
		Data:   make([]byte, len(data)),
		Parity: make([]byte, len(data)),
		Bits:   len(data) * 8,
	}
	for i, b := range data {
		f.Data[i], f.Parity[i] = EncodeByte(b)
	}
	return f
}

// EncodeCommand appends CRC_A to data and frames the result.
func EncodeCommand(data []byte) Frame {
	return Encode(AppendCRC(data))
}

// EncodeBits frames the first n bits of data. Complete bytes get odd parity;
// a trailing partial byte is sent without one. Anticollision uses this for
// requests that end mid-byte.
func EncodeBits(data []byte, n int) Frame {
	full := n / 8
	size := (n + 7) / 8
	f := Frame{
		Data:   make([]byte, size),
		Parity: make([]byte, full),
		Bits:   n,
	}
	copy(f.Data, data[:size])
	if rem := n % 8; rem != 0 {
		f.Data[size-1] &= byte(1)<<uint(rem) - 1
	}
	for i := 0; i < full; i++ {
		f.Parity[i] = OddParity(f.Data[i])
	}
	return f
}

// Decode checks the parity of every complete byte and returns the bytes.
func Decode(f Frame) ([]byte, error) {
	n := f.Len()
	if len(f.Data) < n || len(f.Parity) < n {
		return nil, fmt.Errorf("%w: %d bits with %d data and %d parity bytes",
			ErrMalformedFrame, f.Bits, len(f.Data), len(f.Parity))
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		if f.Parity[i]&1 != OddParity(f.Data[i]) {
			return nil, &FrameError{Index: i, Err: ErrParityMismatch}
		}
		out[i] = f.Data[i]
	}
	return out, nil
}

// DecodeCommand decodes f, verifies the trailing CRC_A and returns the
// payload without it.
func DecodeCommand(f Frame) ([]byte, error) {
	data, err := Decode(f)
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

// Nibble returns the 4-bit value of an ACK/NAK frame.
func Nibble(f Frame) (byte, error) {
	if f.Bits != 4 || len(f.Data) < 1 {
		return 0, fmt.Errorf("%w: expected 4 bits, got %d", ErrMalformedFrame, f.Bits)
	}
	return f.Data[0] & 0x0F, nil
}

// NibbleFrame returns a 4-bit frame, as sent by a tag for ACK/NAK.
func NibbleFrame(v byte) Frame {
	return Frame{Data: []byte{v & 0x0F}, Bits: 4}
}
