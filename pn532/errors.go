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

package pn532

import (
	"fmt"

	mifare "github.com/ZaparooProject/go-mfclassic"
)

// StatusError is a non-zero status byte returned by the PN532 for a
// command that reaches the tag.
type StatusError struct {
	Cmd    byte
	Status byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("PN532 command 0x%02X failed with status 0x%02X (%s)", e.Cmd, e.Status, statusText(e.Status))
}

// Unwrap maps the status onto the error the session understands.
func (e *StatusError) Unwrap() error {
	switch e.Status & statusMask {
	case statusTimeout, statusReleased, statusCardGone:
		return mifare.ErrNoResponse
	case statusCRC:
		return mifare.ErrChecksumMismatch
	case statusParity:
		return mifare.ErrParityMismatch
	case statusCollision:
		return mifare.ErrCollision
	case statusBitCount, statusFraming, statusProtocol:
		return mifare.ErrProtocolViolation
	default:
		return mifare.ErrCommunicationFailed
	}
}

func statusText(status byte) string {
	switch status & statusMask {
	case statusTimeout:
		return "timeout"
	case statusCRC:
		return "CRC error"
	case statusParity:
		return "parity error"
	case statusBitCount:
		return "erroneous bit count"
	case statusFraming:
		return "framing error"
	case statusCollision:
		return "bit collision"
	case statusBufferTooSmall:
		return "buffer too small"
	case statusRFBuffer:
		return "RF buffer overflow"
	case statusNoField:
		return "RF field not switched on"
	case statusProtocol:
		return "RF protocol error"
	case statusReleased:
		return "target released"
	case statusCardGone:
		return "card disappeared"
	default:
		return "unknown"
	}
}
