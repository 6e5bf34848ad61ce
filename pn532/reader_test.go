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
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mifare "github.com/ZaparooProject/go-mfclassic"
	testutil "github.com/ZaparooProject/go-mfclassic/internal/testing"
	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

func fastRetries() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Microsecond,
		MaxBackoff:        10 * time.Microsecond,
		BackoffMultiplier: 2.0,
	}
}

func newTestReader(t *testing.T, tag mifare.Transceiver) (*Reader, *SimulatedChip) {
	t.Helper()
	chip := NewSimulatedChip(tag)
	r, err := NewReader(chip, WithRetryConfig(fastRetries()))
	require.NoError(t, err)
	require.NoError(t, r.Init(context.Background()))
	return r, chip
}

func newSession(t *testing.T, r *Reader) *mifare.Session {
	t.Helper()
	n := uint32(0x0BADF00D)
	s, err := mifare.New(r, mifare.WithNonceSource(mifare.NonceFunc(func() (uint32, error) {
		n += 0x01010101
		return n, nil
	})))
	require.NoError(t, err)
	return s
}

func countCommand(cmds []byte, cmd byte) int {
	return bytes.Count(cmds, []byte{cmd})
}

func TestNewReaderValidation(t *testing.T) {
	t.Parallel()

	_, err := NewReader(nil)
	require.ErrorIs(t, err, mifare.ErrInvalidParameter)

	tests := []struct {
		opt  Option
		name string
	}{
		{name: "zero timeout", opt: WithTimeout(0)},
		{name: "zero RF timeout", opt: WithRFTimeout(-time.Millisecond)},
		{name: "nil retry config", opt: WithRetryConfig(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewReader(NewMockTransport(), tt.opt)
			assert.ErrorIs(t, err, mifare.ErrInvalidParameter)
		})
	}

	r, err := NewReader(NewMockTransport(), WithMaxRetries(7), WithTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 7, r.config.RetryConfig.MaxAttempts)
	assert.Equal(t, 3, DefaultRetryConfig().MaxAttempts, "WithMaxRetries must not touch the defaults")
}

func TestReaderInit(t *testing.T) {
	t.Parallel()

	r, chip := newTestReader(t, testutil.NewVirtualMIFARE1K(nil))

	assert.True(t, chip.FieldOn())
	assert.Zero(t, chip.Register(regTxMode)&bitCRCEn)
	assert.Zero(t, chip.Register(regRxMode)&bitCRCEn)
	assert.NotZero(t, chip.Register(regManualRCV)&bitParityDisable)
	assert.Zero(t, chip.Register(regStatus2)&bitMFCrypto1On)

	fw, err := r.FirmwareVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PN532 v1.6", fw.String())
	assert.Equal(t, 1, countCommand(chip.Commands(), cmdGetFirmwareVersion), "firmware version is cached")

	require.NoError(t, r.Close())
	assert.False(t, chip.FieldOn())
	assert.False(t, chip.IsConnected())
}

func TestReaderInitUnsupported(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetResponse(cmdGetFirmwareVersion, []byte{0x03, 0x33, 0x01, 0x06, 0x07})
	r, err := NewReader(mock)
	require.NoError(t, err)

	err = r.Init(context.Background())
	require.ErrorIs(t, err, mifare.ErrDeviceNotSupported)
	assert.Equal(t, 0, mock.CallCount(cmdSamConfiguration))
}

func TestReaderInitShortFirmwareResponse(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetResponse(cmdGetFirmwareVersion, []byte{0x03, 0x32})
	r, err := NewReader(mock)
	require.NoError(t, err)
	require.ErrorIs(t, r.Init(context.Background()), mifare.ErrFrameCorrupted)
}

func TestSetupCommandsAreRetried(t *testing.T) {
	t.Parallel()

	chip := NewSimulatedChip(testutil.NewVirtualMIFARE1K(nil))
	chip.FailNext(cmdGetFirmwareVersion, mifare.NewTimeoutError("SendCommand", "sim"))
	r, err := NewReader(chip, WithRetryConfig(fastRetries()))
	require.NoError(t, err)

	require.NoError(t, r.Init(context.Background()))
	assert.Equal(t, 2, countCommand(chip.Commands(), cmdGetFirmwareVersion))
}

func TestCommunicateThruIsNotRetried(t *testing.T) {
	t.Parallel()

	r, chip := newTestReader(t, testutil.NewVirtualMIFARE1K(nil))
	chip.FailNext(cmdInCommunicateThru, mifare.NewTimeoutError("SendCommand", "sim"))

	_, err := r.TransceiveBits(context.Background(), iso14443a.ShortFrame(iso14443a.CmdREQA))
	require.ErrorIs(t, err, mifare.ErrTransportTimeout)
	assert.Equal(t, 1, countCommand(chip.Commands(), cmdInCommunicateThru))
}

func TestReaderRequest(t *testing.T) {
	t.Parallel()

	r, chip := newTestReader(t, testutil.NewVirtualMIFARE1K(nil))

	rx, err := r.TransceiveBits(context.Background(), iso14443a.ShortFrame(iso14443a.CmdREQA))
	require.NoError(t, err)
	assert.Equal(t, 16, rx.Bits)
	atqa, err := iso14443a.Decode(rx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0x00}, atqa)
	assert.Equal(t, byte(7), chip.Register(regBitFrame)&maskTxLastBits)
}

func TestReaderSessionReadWrite(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	r, _ := newTestReader(t, tag)
	s := newSession(t, r)
	ctx := context.Background()

	target, err := s.Activate(ctx)
	require.NoError(t, err)
	assert.Equal(t, mifare.UID{0xDE, 0xAD, 0xBE, 0xEF}, target.UID)
	assert.Equal(t, mifare.Capacity1K, target.Capacity)

	require.NoError(t, s.Authenticate(ctx, 4, mifare.DefaultKey, mifare.KeyA))

	want := mifare.Block{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10}
	require.NoError(t, s.WriteBlock(ctx, 5, want))
	got, err := s.ReadBlock(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want[:], tag.Block(5))

	require.NoError(t, s.Halt(ctx))
	assert.True(t, tag.Halted())
}

func TestReaderWrongKey(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	tag.SetKeys(1, [6]byte{1, 2, 3, 4, 5, 6}, [6]byte{1, 2, 3, 4, 5, 6})
	r, _ := newTestReader(t, tag)
	s := newSession(t, r)
	ctx := context.Background()

	_, err := s.Activate(ctx)
	require.NoError(t, err)
	err = s.Authenticate(ctx, 4, mifare.DefaultKey, mifare.KeyA)
	require.ErrorIs(t, err, mifare.ErrAuthenticationFailed)
	assert.Equal(t, mifare.StateSelected, s.State())
}

func TestReaderCascade(t *testing.T) {
	t.Parallel()

	uid := []byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	r, _ := newTestReader(t, testutil.NewVirtualMIFARE1K(uid))
	s := newSession(t, r)

	target, err := s.Activate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mifare.UID(uid), target.UID)
	assert.Equal(t, 2, s.CascadeLevel())
}

func TestReaderCollision(t *testing.T) {
	t.Parallel()

	low := testutil.NewVirtualMIFARE1K([]byte{0x11, 0x22, 0x30, 0x44})
	high := testutil.NewVirtualMIFARE1K([]byte{0x11, 0x22, 0x31, 0x44})
	r, chip := newTestReader(t, testutil.NewField(low, high))
	s := newSession(t, r)

	target, err := s.Activate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mifare.UID{0x11, 0x22, 0x31, 0x44}, target.UID)
	assert.NotZero(t, chip.Register(regColl))
}

func TestReaderNoTag(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	tag.Remove()
	r, _ := newTestReader(t, tag)

	_, err := r.TransceiveBits(context.Background(), iso14443a.ShortFrame(iso14443a.CmdWUPA))
	require.ErrorIs(t, err, mifare.ErrNoResponse)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, byte(statusTimeout), se.Status)

	s := newSession(t, r)
	_, err = s.Activate(context.Background())
	require.ErrorIs(t, err, mifare.ErrNoTagPresent)
}

func TestReaderFieldOff(t *testing.T) {
	t.Parallel()

	r, _ := newTestReader(t, testutil.NewVirtualMIFARE1K(nil))
	require.NoError(t, r.SetField(context.Background(), false))

	_, err := r.TransceiveBits(context.Background(), iso14443a.ShortFrame(iso14443a.CmdREQA))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, byte(statusNoField), se.Status)
	assert.ErrorIs(t, err, mifare.ErrCommunicationFailed)
}

func TestReaderFrameTooLarge(t *testing.T) {
	t.Parallel()

	r, _ := newTestReader(t, testutil.NewVirtualMIFARE1K(nil))
	_, err := r.TransceiveBits(context.Background(), iso14443a.Encode(make([]byte, 240)))
	require.ErrorIs(t, err, mifare.ErrDataTooLarge)
}

func TestStatusErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want   error
		text   string
		status byte
	}{
		{status: statusTimeout, want: mifare.ErrNoResponse, text: "timeout"},
		{status: statusCardGone, want: mifare.ErrNoResponse, text: "card disappeared"},
		{status: statusCRC, want: mifare.ErrChecksumMismatch, text: "CRC error"},
		{status: statusParity, want: mifare.ErrParityMismatch, text: "parity error"},
		{status: statusCollision, want: mifare.ErrCollision, text: "bit collision"},
		{status: statusFraming, want: mifare.ErrProtocolViolation, text: "framing error"},
		{status: statusRFBuffer, want: mifare.ErrCommunicationFailed, text: "RF buffer overflow"},
		{status: 0x40 | statusTimeout, want: mifare.ErrNoResponse, text: "timeout"},
	}
	for _, tt := range tests {
		err := &StatusError{Cmd: cmdInCommunicateThru, Status: tt.status}
		assert.ErrorIs(t, err, tt.want, "status 0x%02X", tt.status)
		assert.Contains(t, err.Error(), tt.text)
	}
}

func TestTimeoutCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d    time.Duration
		want byte
	}{
		{d: 0, want: 0x01},
		{d: 100 * time.Microsecond, want: 0x01},
		{d: 101 * time.Microsecond, want: 0x02},
		{d: 25 * time.Millisecond, want: 0x09},
		{d: 100 * time.Millisecond, want: 0x0B},
		{d: time.Minute, want: 0x10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, timeoutCode(tt.d), "timeoutCode(%v)", tt.d)
	}
}

func TestRawToFramePos(t *testing.T) {
	t.Parallel()

	for pos := 0; pos < 64; pos++ {
		raw := pos + pos/8
		assert.Equal(t, pos, rawToFramePos(raw), "frame bit %d at raw bit %d", pos, raw)
	}
}
