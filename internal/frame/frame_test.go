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
	"testing"

	mifare "github.com/ZaparooProject/go-mfclassic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	t.Parallel()

	frm, err := Build(0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD4, 0x02, 0x2A, 0x00}, frm)

	frm, err = Build(0x14, []byte{0x01, 0x14, 0x01})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x05, 0xFB, 0xD4, 0x14, 0x01, 0x14, 0x01, 0x02, 0x00}, frm)

	_, err = Build(0x42, make([]byte, 254))
	require.ErrorIs(t, err, mifare.ErrDataTooLarge)
}

// response wraps payload in a PN532-to-host frame.
func response(payload ...byte) []byte {
	n := byte(len(payload) + 1)
	frm := []byte{0x00, 0x00, 0xFF, n, CalculateLengthChecksum(n), Pn532ToHost}
	frm = append(frm, payload...)
	return append(frm, CalculateDataChecksum(Pn532ToHost, payload), 0x00)
}

func TestParse(t *testing.T) {
	t.Parallel()

	valid := response(0x03, 0x32, 0x01, 0x06, 0x07)
	badDCS := bytes.Clone(valid)
	badDCS[len(badDCS)-2] ^= 0xFF
	badLCS := bytes.Clone(valid)
	badLCS[4] ^= 0x01
	otherTFI := bytes.Clone(valid)
	otherTFI[5] = HostToPn532
	otherTFI[len(otherTFI)-2] = CalculateDataChecksum(HostToPn532, valid[6:len(valid)-2])

	tests := []struct {
		wantErr   error
		name      string
		buf       []byte
		want      []byte
		wantRetry bool
	}{
		{name: "firmware version", buf: valid, want: []byte{0x03, 0x32, 0x01, 0x06, 0x07}},
		{name: "leading garbage", buf: append([]byte{0x12, 0x00}, valid...), want: []byte{0x03, 0x32, 0x01, 0x06, 0x07}},
		{name: "bad data checksum", buf: badDCS, wantRetry: true},
		{name: "bad length checksum", buf: badLCS, wantRetry: true},
		{name: "wrong direction", buf: otherTFI, wantRetry: true},
		{name: "ack instead of response", buf: AckFrame, wantRetry: true},
		{name: "truncated", buf: valid[:8], wantErr: ErrIncomplete},
		{name: "no start code", buf: []byte{0x01, 0x02}, wantErr: ErrIncomplete},
		{name: "error frame", buf: []byte{0x00, 0x00, 0xFF, 0x01, 0xFF, 0x7F, 0x81, 0x00}, wantErr: mifare.ErrCommunicationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, retry, err := Parse(tt.buf)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRetry, retry)
			assert.Equal(t, tt.want, data)
		})
	}
}

func TestAckNack(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAck(AckFrame))
	assert.True(t, IsAck(append([]byte{0x00, 0x00}, AckFrame...)))
	assert.False(t, IsAck(NackFrame))
	assert.True(t, IsNack(NackFrame))
	assert.False(t, IsNack(AckFrame))
}
