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

package testing

// PN532 command codes used by the canned responses
const (
	CmdGetFirmwareVersion = 0x02
	CmdSAMConfiguration   = 0x14
	CmdInCommunicateThru  = 0x42
)

// BuildFirmwareVersionResponse creates a GetFirmwareVersion payload:
// PN532 version 1.6 revision 7, ISO14443A/B and FeliCa supported.
func BuildFirmwareVersionResponse() []byte {
	return []byte{CmdGetFirmwareVersion + 1, 0x32, 0x01, 0x06, 0x07}
}

// BuildSAMConfigurationResponse creates a SAMConfiguration payload
func BuildSAMConfigurationResponse() []byte {
	return []byte{CmdSAMConfiguration + 1}
}

// BuildThruResponse creates an InCommunicateThru payload
func BuildThruResponse(status byte, raw ...byte) []byte {
	return append([]byte{CmdInCommunicateThru + 1, status}, raw...)
}

// BuildErrorResponse creates a status-only response for any command
func BuildErrorResponse(cmd, errorCode byte) []byte {
	return []byte{cmd + 1, errorCode}
}

// BuildFrame wraps a response payload in a complete PN532-to-host
// information frame, as it appears on the wire.
func BuildFrame(payload []byte) []byte {
	n := byte(len(payload) + 1)
	frm := []byte{0x00, 0x00, 0xFF, n, ^n + 1, 0xD5}
	frm = append(frm, payload...)
	sum := byte(0xD5)
	for _, b := range payload {
		sum += b
	}
	return append(frm, ^sum+1, 0x00)
}

// AckFrame is the PN532 ACK as it appears on the wire
func AckFrame() []byte {
	return []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
}

// Common UIDs for testing
var (
	// TestMIFARE1KUID is a sample MIFARE Classic 1K UID
	TestMIFARE1KUID = []byte{0x12, 0x34, 0x56, 0x78}

	// TestMIFARE4KUID is a sample MIFARE Classic 4K UID
	TestMIFARE4KUID = []byte{0xAB, 0xCD, 0xEF, 0x01}

	// TestDoubleSizeUID is a sample 7-byte UID (NXP manufacturer byte first)
	TestDoubleSizeUID = []byte{0x04, 0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56}
)
