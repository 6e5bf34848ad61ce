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

package libnfc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/clausecker/nfc/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mifare "github.com/ZaparooProject/go-mfclassic"
	testutil "github.com/ZaparooProject/go-mfclassic/internal/testing"
	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

// fakeDevice answers like libnfc with parity handling off: the received
// stream is grouped into bytes from its first bit, whatever the request
// alignment was.
type fakeDevice struct {
	tag      mifare.Transceiver
	props    map[int]bool
	timeouts []int
	initErr  error
	txErr    error
	closed   bool
}

func newFakeDevice(tag mifare.Transceiver) *fakeDevice {
	return &fakeDevice{tag: tag, props: make(map[int]bool)}
}

func (d *fakeDevice) InitiatorInit() error { return d.initErr }

func (d *fakeDevice) SetPropertyBool(property int, value bool) error {
	d.props[property] = value
	return nil
}

func (d *fakeDevice) SetPropertyInt(property, value int) error {
	if property == nfc.TimeoutCommand {
		d.timeouts = append(d.timeouts, value)
	}
	return nil
}

func (d *fakeDevice) InitiatorTransceiveBits(tx, txPar []byte, txLength uint, rx, rxPar []byte) (int, error) {
	if d.txErr != nil {
		return 0, d.txErr
	}
	if d.props[nfc.HandleParity] || d.props[nfc.HandleCRC] || !d.props[nfc.ActivateField] {
		return 0, nfc.Error(nfc.EINVARG)
	}
	f := iso14443a.Frame{Data: tx, Parity: txPar[:txLength/8], Bits: int(txLength)}
	ans, err := d.tag.TransceiveBits(context.Background(), f)
	if err != nil {
		return 0, nfc.Error(nfc.ETIMEOUT)
	}

	align := 0
	if !f.IsShort() {
		align = f.Bits % 8
	}
	raw, rawBits := iso14443a.Wrap(ans)
	var stream []byte
	for i := align; i < rawBits; i++ {
		if len(stream) <= (i-align)/8 {
			stream = append(stream, 0)
		}
		stream[(i-align)/8] |= (raw[i/8] >> uint(i%8) & 1) << uint((i-align)%8)
	}
	got := iso14443a.Unwrap(stream, rawBits-align, 0)
	copy(rx, got.Data)
	copy(rxPar, got.Parity)
	return got.Bits, nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func (*fakeDevice) String() string { return "fake:0" }

func TestNewReaderConfiguresRawMode(t *testing.T) {
	t.Parallel()

	dev := newFakeDevice(nil)
	_, err := newReader(dev)
	require.NoError(t, err)

	assert.False(t, dev.props[nfc.HandleCRC])
	assert.False(t, dev.props[nfc.HandleParity])
	assert.False(t, dev.props[nfc.ActivateCrypto1])
	assert.False(t, dev.props[nfc.EasyFraming])
	assert.True(t, dev.props[nfc.ActivateField])
}

func TestNewReaderInitFails(t *testing.T) {
	t.Parallel()

	dev := newFakeDevice(nil)
	dev.initErr = nfc.Error(nfc.EIO)
	_, err := newReader(dev)
	require.Error(t, err)
}

func TestSplitAnswerRealigned(t *testing.T) {
	t.Parallel()

	uid := testutil.TestMIFARE1KUID
	r, err := newReader(newFakeDevice(testutil.NewVirtualMIFARE1K(uid)))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.TransceiveBits(ctx, iso14443a.ShortFrame(iso14443a.CmdREQA))
	require.NoError(t, err)

	// SEL with the low nibble of the first UID byte known
	tx := iso14443a.EncodeBits([]byte{iso14443a.SelectCommand(1), iso14443a.NVB(4), uid[0] & 0x0F}, 20)
	rx, err := r.TransceiveBits(ctx, tx)
	require.NoError(t, err)

	assert.Equal(t, 40, rx.Bits)
	assert.Equal(t, uid[0]&0xF0, rx.Data[0])
	assert.Equal(t, uid[1:], rx.Data[1:4])
	assert.Equal(t, iso14443a.OddParity(uid[0]), rx.Parity[0])
}

func TestShiftStream(t *testing.T) {
	t.Parallel()

	out, n := shiftStream([]byte{0xFF, 0x01}, 9, 3)
	assert.Equal(t, 12, n)
	assert.Equal(t, []byte{0xF8, 0x0F}, out)
}

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err       error
		wantErr   error
		transport bool
	}{
		{err: nfc.Error(nfc.ETIMEOUT), wantErr: mifare.ErrNoResponse},
		{err: nfc.Error(nfc.ERFTRANS), wantErr: mifare.ErrCollision},
		{err: nfc.Error(nfc.ECHIP), wantErr: mifare.ErrCommunicationFailed, transport: true},
		{err: nfc.Error(nfc.EIO), wantErr: nfc.Error(nfc.EIO), transport: true},
		{err: errors.New("device closed"), transport: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			t.Parallel()

			err := mapError(tt.err)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			var te *mifare.TransportError
			assert.Equal(t, tt.transport, errors.As(err, &te))
		})
	}
}

func TestDeadlineBecomesTimeout(t *testing.T) {
	t.Parallel()

	dev := newFakeDevice(testutil.NewVirtualMIFARE1K(testutil.TestMIFARE1KUID))
	r, err := newReader(dev)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	atqa, err := r.TransceiveBits(ctx, iso14443a.ShortFrame(iso14443a.CmdWUPA))
	require.NoError(t, err)
	assert.Equal(t, 16, atqa.Bits)
	require.Len(t, dev.timeouts, 1)
	assert.LessOrEqual(t, dev.timeouts[0], 60_000)
	assert.Greater(t, dev.timeouts[0], 59_000)

	// A READY tag ignores WUPA. The silence maps to ErrNoResponse, and the
	// shorter deadline is pushed to the device.
	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	_, err = r.TransceiveBits(short, iso14443a.ShortFrame(iso14443a.CmdWUPA))
	require.ErrorIs(t, err, iso14443a.ErrNoResponse)
	require.Len(t, dev.timeouts, 2)
	assert.LessOrEqual(t, dev.timeouts[1], 50)
}

func TestSessionOverLibnfc(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(testutil.TestDoubleSizeUID)
	tag.SetBlock(1, []byte("libnfc raw frame"))
	dev := newFakeDevice(tag)
	r, err := newReader(dev)
	require.NoError(t, err)

	s, err := mifare.New(r)
	require.NoError(t, err)
	ctx := context.Background()
	target, err := s.Activate(ctx)
	require.NoError(t, err)
	assert.Equal(t, mifare.UID(testutil.TestDoubleSizeUID), target.UID)

	require.NoError(t, s.Authenticate(ctx, 1, mifare.DefaultKey, mifare.KeyA))
	block, err := s.ReadBlock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "libnfc raw frame", string(block[:]))
	require.NoError(t, s.Halt(ctx))

	require.NoError(t, r.Close())
	assert.True(t, dev.closed)
	assert.False(t, dev.props[nfc.ActivateField])

	_, err = r.TransceiveBits(ctx, iso14443a.ShortFrame(iso14443a.CmdWUPA))
	require.ErrorIs(t, err, mifare.ErrTransportClosed)
}
