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

package uart

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	mifare "github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/internal/frame"
	testutil "github.com/ZaparooProject/go-mfclassic/internal/testing"
	"github.com/ZaparooProject/go-mfclassic/pn532"
)

// fakePort plays the PN532 side of the serial line. Every command frame
// written to it is handed to respond, whose output is queued for reading.
// Methods the transport never calls are left to the embedded interface.
type fakePort struct {
	serial.Port
	respond func(cmd byte, args []byte) []byte
	writes  [][]byte
	rx      []byte
	mu      sync.Mutex
	closed  bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, append([]byte(nil), b...))
	if len(b) > 7 && b[5] == frame.HostToPn532 && p.respond != nil {
		p.rx = append(p.rx, p.respond(b[6], b[7:len(b)-2])...)
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	p.mu.Unlock()
	if n == 0 {
		time.Sleep(time.Millisecond)
	}
	return n, nil
}

func (*fakePort) SetReadTimeout(time.Duration) error { return nil }
func (*fakePort) ResetInputBuffer() error            { return nil }

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.writes...)
}

// chipPort answers through a simulated PN532.
func chipPort(chip *pn532.SimulatedChip) *fakePort {
	return &fakePort{respond: func(cmd byte, args []byte) []byte {
		resp, err := chip.SendCommand(cmd, args)
		if err != nil {
			return nil
		}
		return append(testutil.AckFrame(), testutil.BuildFrame(resp)...)
	}}
}

func TestTransportCreation(t *testing.T) {
	t.Parallel()

	transport := &Transport{portName: "/dev/ttyUSB0"}
	assert.Equal(t, pn532.TransportUART, transport.Type())
	assert.False(t, transport.IsConnected())

	_, err := transport.SendCommand(0x02, nil)
	require.ErrorIs(t, err, mifare.ErrTransportClosed)
}

func TestSendCommand(t *testing.T) {
	t.Parallel()

	port := &fakePort{respond: func(cmd byte, _ []byte) []byte {
		assert.Equal(t, byte(testutil.CmdGetFirmwareVersion), cmd)
		return append(testutil.AckFrame(), testutil.BuildFrame(testutil.BuildFirmwareVersionResponse())...)
	}}
	tr := newWithPort(port, "/dev/ttyUSB0")

	resp, err := tr.SendCommand(testutil.CmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	assert.Equal(t, testutil.BuildFirmwareVersionResponse(), resp)

	writes := port.written()
	require.Len(t, writes, 2)
	assert.Equal(t, wakeup, writes[0])
	want, err := frame.Build(testutil.CmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	assert.Equal(t, want, writes[1])

	_, err = tr.SendCommand(testutil.CmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	assert.Len(t, port.written(), 3, "wakeup preamble is sent once")
}

func TestSendCommandNacksCorruptFrame(t *testing.T) {
	t.Parallel()

	good := testutil.BuildFrame(testutil.BuildSAMConfigurationResponse())
	bad := bytes.Clone(good)
	bad[len(bad)-2] ^= 0x55

	port := &fakePort{}
	port.respond = func(byte, []byte) []byte {
		return append(testutil.AckFrame(), bad...)
	}
	tr := newWithPort(port, "/dev/ttyUSB0")
	tr.awake = true

	// The NACK is written raw, so it never reaches respond; queue the
	// retransmission by hand once the NACK shows up.
	go func() {
		for range 200 {
			for _, w := range port.written() {
				if bytes.Equal(w, frame.NackFrame) {
					port.mu.Lock()
					port.rx = append(port.rx, good...)
					port.mu.Unlock()
					return
				}
			}
			time.Sleep(time.Millisecond)
		}
	}()

	resp, err := tr.SendCommand(testutil.CmdSAMConfiguration, []byte{0x01, 0x14, 0x01})
	require.NoError(t, err)
	assert.Equal(t, testutil.BuildSAMConfigurationResponse(), resp)
}

func TestSendCommandNoAck(t *testing.T) {
	t.Parallel()

	tr := newWithPort(&fakePort{}, "/dev/ttyUSB0")
	_, err := tr.SendCommand(0x02, nil)
	require.ErrorIs(t, err, mifare.ErrNoACK)
	assert.True(t, mifare.IsRetryable(err))
}

func TestSendCommandResponseTimeout(t *testing.T) {
	t.Parallel()

	port := &fakePort{respond: func(byte, []byte) []byte { return testutil.AckFrame() }}
	tr := newWithPort(port, "/dev/ttyUSB0")
	require.NoError(t, tr.SetTimeout(20*time.Millisecond))

	_, err := tr.SendCommand(0x02, nil)
	require.ErrorIs(t, err, mifare.ErrTransportTimeout)
	assert.Equal(t, mifare.ErrorTypeTimeout, mifare.GetErrorType(err))
}

func TestSendCommandContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := (&Transport{}).SendCommandContext(ctx, 0x02, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestSetTimeoutValidation(t *testing.T) {
	t.Parallel()

	tr := newWithPort(&fakePort{}, "/dev/ttyUSB0")
	require.ErrorIs(t, tr.SetTimeout(0), mifare.ErrInvalidParameter)
}

func TestClose(t *testing.T) {
	t.Parallel()

	port := &fakePort{}
	tr := newWithPort(port, "/dev/ttyUSB0")
	assert.True(t, tr.IsConnected())
	require.NoError(t, tr.Close())
	assert.True(t, port.closed)
	assert.False(t, tr.IsConnected())
	require.NoError(t, tr.Close())
}

func TestSessionOverSerial(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(testutil.TestMIFARE1KUID)
	tag.SetBlock(8, []byte("serial link ok!!"))
	tr := newWithPort(chipPort(pn532.NewSimulatedChip(tag)), "/dev/ttyUSB0")

	reader, err := pn532.NewReader(tr)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, reader.Init(ctx))

	s, err := mifare.New(reader)
	require.NoError(t, err)
	target, err := s.Activate(ctx)
	require.NoError(t, err)
	assert.Equal(t, mifare.UID(testutil.TestMIFARE1KUID), target.UID)

	require.NoError(t, s.Authenticate(ctx, 8, mifare.DefaultKey, mifare.KeyA))
	block, err := s.ReadBlock(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, "serial link ok!!", string(block[:]))
}
