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

package frame

import (
	"bytes"
	"errors"
	"fmt"

	mifare "github.com/ZaparooProject/go-mfclassic"
)

// ErrIncomplete is returned by Parse when buf ends before the frame does.
// Callers reading a stream should read more and try again.
var ErrIncomplete = errors.New("frame: incomplete")

// Build returns a normal information frame carrying cmd and args from the
// host to the PN532.
func Build(cmd byte, args []byte) ([]byte, error) {
	dataLen := 2 + len(args)
	if dataLen > MaxFrameDataLength {
		return nil, mifare.NewDataTooLargeError("buildFrame", "")
	}

	frm := make([]byte, 0, dataLen+Overhead)
	frm = append(frm, Preamble, StartCode1, StartCode2,
		byte(dataLen), CalculateLengthChecksum(byte(dataLen)),
		HostToPn532, cmd)
	frm = append(frm, args...)
	frm = append(frm, CalculateDataChecksum(HostToPn532, append([]byte{cmd}, args...)), Postamble)
	return frm, nil
}

// IsAck reports whether buf starts with an ACK frame, ignoring leading
// zero bytes some links clock out while idle.
func IsAck(buf []byte) bool {
	return bytes.HasPrefix(trimIdle(buf), AckFrame[1:])
}

// IsNack reports whether buf starts with a NACK frame.
func IsNack(buf []byte) bool {
	return bytes.HasPrefix(trimIdle(buf), NackFrame[1:])
}

func trimIdle(buf []byte) []byte {
	i := 0
	for i < len(buf)-1 && buf[i] == 0x00 && buf[i+1] == 0x00 {
		i++
	}
	return buf[i:]
}

// FindStart returns the index of the LEN byte of the first frame in buf,
// or -1 when no start code is present.
func FindStart(buf []byte) int {
	for off := 0; off < len(buf)-1; off++ {
		if buf[off] == StartCode1 && buf[off+1] == StartCode2 {
			return off + 2
		}
	}
	return -1
}

// Parse extracts the payload of the first response frame in buf. The
// payload starts at the response code (command + 1). shouldRetry reports a
// frame that arrived damaged and should be NACKed; err is set for frames
// that cannot become valid by re-reading. ErrIncomplete means buf is short.
func Parse(buf []byte) (data []byte, shouldRetry bool, err error) {
	off := FindStart(buf)
	if off < 0 || off+2 > len(buf) {
		return nil, false, ErrIncomplete
	}

	frameLen := int(buf[off])
	if buf[off]+buf[off+1] != 0 {
		return nil, true, nil
	}
	start := off + 2
	end := start + frameLen + 1
	if end > len(buf) {
		return nil, false, ErrIncomplete
	}
	if ValidateChecksum(buf[start:end]) {
		return nil, true, nil
	}

	switch buf[start] {
	case Pn532ToHost:
	case ErrorTFI:
		return nil, false, fmt.Errorf("%w: PN532 application error frame", mifare.ErrCommunicationFailed)
	default:
		return nil, true, nil
	}
	if frameLen < 2 {
		return nil, false, mifare.NewFrameCorruptedError("parseFrame", "")
	}

	data = make([]byte, frameLen-1)
	copy(data, buf[start+1:end-1])
	return data, false, nil
}
