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

// Short frame commands
const (
	CmdREQA byte = 0x26
	CmdWUPA byte = 0x52
)

// Byte commands
const (
	CmdHLTA         byte = 0x50
	CmdSelectCL1    byte = 0x93
	CmdSelectCL2    byte = 0x95
	CmdSelectCL3    byte = 0x97
	CmdAuthKeyA     byte = 0x60
	CmdAuthKeyB     byte = 0x61
	CmdRead         byte = 0x30
	CmdWrite        byte = 0xA0
	CascadeTag      byte = 0x88
	NVBSelect       byte = 0x70
	SAKCascadeBit   byte = 0x04
	MaxCascadeLevel      = 3
)

// 4-bit answers. Anything but ACK is a NAK.
const (
	ACK            byte = 0x0A
	NAKInvalidArg  byte = 0x00
	NAKCRCError    byte = 0x01
	NAKInvalidAuth byte = 0x04
	NAKEEPROMWrite byte = 0x05
)

// SelectCommand returns the SEL code for a cascade level counted from 1.
// It returns 0 for levels outside 1..3.
func SelectCommand(level int) byte {
	switch level {
	case 1:
		return CmdSelectCL1
	case 2:
		return CmdSelectCL2
	case 3:
		return CmdSelectCL3
	default:
		return 0
	}
}

// NVB returns the number-of-valid-bits byte for an anticollision request
// that carries known UID bits after SEL and NVB themselves.
func NVB(known int) byte {
	return byte((2+known/8)<<4 | known%8)
}

// BCC returns the block check character of a UID fragment.
func BCC(b []byte) byte {
	var x byte
	for _, v := range b {
		x ^= v
	}
	return x
}

// CascadeUID splits a 4, 7 or 10 byte UID into its per level fragments, each
// four bytes with a leading cascade tag where the UID continues.
func CascadeUID(uid []byte) [][]byte {
	switch len(uid) {
	case 7:
		return [][]byte{
			{CascadeTag, uid[0], uid[1], uid[2]},
			append([]byte(nil), uid[3:7]...),
		}
	case 10:
		return [][]byte{
			{CascadeTag, uid[0], uid[1], uid[2]},
			{CascadeTag, uid[3], uid[4], uid[5]},
			append([]byte(nil), uid[6:10]...),
		}
	default:
		return [][]byte{append([]byte(nil), uid...)}
	}
}

// NAKMeaning describes a 4-bit NAK value.
func NAKMeaning(v byte) string {
	switch v {
	case ACK:
		return "ACK"
	case NAKInvalidArg:
		return "invalid argument"
	case NAKCRCError:
		return "parity or CRC error"
	case NAKInvalidAuth:
		return "operation not allowed"
	case NAKEEPROMWrite:
		return "EEPROM write error"
	default:
		return "unknown NAK"
	}
}
