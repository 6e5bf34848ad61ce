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

// CRC returns the CRC_A of data (reflected polynomial 0x8408, initial value
// 0x6363) in transmission order, low byte first.
func CRC(data []byte) [2]byte {
	crc := uint32(0x6363)
	for _, b := range data {
		b ^= byte(crc)
		b ^= b << 4
		w := uint32(b)
		crc = crc>>8 ^ w<<8 ^ w<<3 ^ w>>4
	}
	return [2]byte{byte(crc), byte(crc >> 8)}
}

// AppendCRC returns a new slice holding data followed by its CRC_A.
func AppendCRC(data []byte) []byte {
	crc := CRC(data)
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return append(out, crc[0], crc[1])
}

// CheckCRC reports whether the last two bytes of data are the CRC_A of the
// bytes before them.
func CheckCRC(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	n := len(data) - 2
	crc := CRC(data[:n])
	return data[n] == crc[0] && data[n+1] == crc[1]
}
