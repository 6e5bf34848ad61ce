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

// PN532 command codes
const (
	cmdGetFirmwareVersion = 0x02
	cmdReadRegister       = 0x06
	cmdWriteRegister      = 0x08
	cmdSamConfiguration   = 0x14
	cmdRFConfiguration    = 0x32
	cmdInCommunicateThru  = 0x42
)

// RFConfiguration items
const (
	rfItemField    = 0x01
	rfItemTimings  = 0x02
	rfItemRetries  = 0x05
	rfFieldOn      = 0x01
	rfFieldOff     = 0x00
	atrResTimeout  = 0x0B // 102.4 ms, unused in initiator raw mode
	maxTimeoutCode = 0x10
)

// CIU registers touched by raw mode. Addresses are in the PN532 XRAM map.
const (
	regTxMode    uint16 = 0x6302
	regRxMode    uint16 = 0x6303
	regManualRCV uint16 = 0x630D
	regStatus2   uint16 = 0x6338
	regControl   uint16 = 0x633C
	regBitFrame  uint16 = 0x633D
	regColl      uint16 = 0x633E
)

// CIU register bits
const (
	bitCRCEn          = 0x80 // TxMode, RxMode
	bitParityDisable  = 0x10 // ManualRCV
	bitMFCrypto1On    = 0x08 // Status2
	maskRxLastBits    = 0x07 // Control
	maskTxLastBits    = 0x07 // BitFraming
	maskRxAlign       = 0x70 // BitFraming
	maskCollPos       = 0x1F // Coll
	bitCollPosInvalid = 0x20 // Coll
)

// InCommunicateThru status codes (low six bits of the status byte)
const (
	statusOK             = 0x00
	statusTimeout        = 0x01
	statusCRC            = 0x02
	statusParity         = 0x03
	statusBitCount       = 0x04
	statusFraming        = 0x05
	statusCollision      = 0x06
	statusBufferTooSmall = 0x07
	statusRFBuffer       = 0x09
	statusNoField        = 0x0A
	statusProtocol       = 0x0B
	statusReleased       = 0x29
	statusCardGone       = 0x2B
	statusMask           = 0x3F
)

// maxThruData is the largest raw stream InCommunicateThru accepts.
const maxThruData = 262
