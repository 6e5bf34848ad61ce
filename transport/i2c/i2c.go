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

// Package i2c provides the PN532 host link over I2C
package i2c

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	mifare "github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/internal/frame"
	"github.com/ZaparooProject/go-mfclassic/internal/transport"
	"github.com/ZaparooProject/go-mfclassic/pn532"
)

const (
	// Address is the 7-bit I2C address of the PN532
	Address = 0x24

	pn532Ready = 0x01

	// Max clock frequency (400 kHz).
	maxClockFreq = 400 * physic.KiloHertz

	defaultTimeout = time.Second
	ackTimeout     = 50 * time.Millisecond
	maxNackRetries = 3
)

// Transport implements the pn532.Transport interface for I2C communication
type Transport struct {
	dev     conn.Conn
	closer  func() error
	busName string
	timeout time.Duration
}

// New opens busName ("" for the first bus) and talks to the PN532 at its
// fixed address.
func New(busName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	if err := bus.SetSpeed(maxClockFreq); err != nil {
		mifare.Debugf("i2c: keeping default bus speed: %v", err)
	}

	t := newWithConn(&i2c.Dev{Addr: Address, Bus: bus}, busName)
	t.closer = bus.Close
	return t, nil
}

func newWithConn(dev conn.Conn, busName string) *Transport {
	return &Transport{
		dev:     dev,
		busName: busName,
		timeout: defaultTimeout,
	}
}

// SendCommand sends a command to the PN532 and waits for response
func (t *Transport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	return t.SendCommandContext(context.Background(), cmd, args)
}

// SendCommandContext sends a command and gives up when ctx is done
func (t *Transport) SendCommandContext(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.dev == nil {
		return nil, mifare.NewTransportError("SendCommand", t.busName, mifare.ErrTransportClosed, mifare.ErrorTypePermanent)
	}

	frm, err := frame.Build(cmd, args)
	if err != nil {
		return nil, err
	}
	if err := t.dev.Tx(frm, nil); err != nil {
		return nil, mifare.NewTransportError("sendFrame", t.busName, fmt.Errorf("%w: %w", mifare.ErrTransportWrite, err), mifare.ErrorTypeTransient)
	}

	if err := t.waitAck(ctx); err != nil {
		return nil, err
	}

	return transport.WithRetry(transport.RetryConfig{
		Description: "receiveFrame",
		Port:        t.busName,
		MaxRetries:  maxNackRetries,
		OnRetry:     t.sendNack,
	}, func() ([]byte, bool, error) {
		return t.receiveFrame(ctx)
	})
}

// readReady reads n bytes once the status byte reports ready. The status
// byte is stripped.
func (t *Transport) readReady(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	return transport.TimeoutRetry(ctx, timeout, t.busName, func() ([]byte, bool, error) {
		buf := make([]byte, n+1)
		if err := t.dev.Tx(nil, buf); err != nil {
			return nil, false, mifare.NewTransportError("read", t.busName, fmt.Errorf("%w: %w", mifare.ErrTransportRead, err), mifare.ErrorTypeTransient)
		}
		if buf[0] != pn532Ready {
			return nil, true, nil
		}
		return buf[1:], false, nil
	})
}

// waitAck waits for an ACK frame from the PN532
func (t *Transport) waitAck(ctx context.Context) error {
	buf, err := t.readReady(ctx, len(frame.AckFrame), ackTimeout)
	if err != nil {
		if mifare.GetErrorType(err) == mifare.ErrorTypeTimeout {
			return mifare.NewNoACKError("waitAck", t.busName)
		}
		return err
	}
	if !frame.IsAck(buf) {
		return mifare.NewNoACKError("waitAck", t.busName)
	}
	return nil
}

func (t *Transport) sendNack() error {
	if err := t.dev.Tx(frame.NackFrame, nil); err != nil {
		return mifare.NewTransportError("sendNack", t.busName, fmt.Errorf("%w: %w", mifare.ErrTransportWrite, err), mifare.ErrorTypeTransient)
	}
	return nil
}

// receiveFrame reads one response. I2C reads are fixed-size, so the
// largest normal frame is read in one go.
func (t *Transport) receiveFrame(ctx context.Context) ([]byte, bool, error) {
	buf, err := t.readReady(ctx, frame.MaxFrameDataLength+frame.Overhead, t.timeout)
	if err != nil {
		return nil, false, err
	}
	data, shouldRetry, err := frame.Parse(buf)
	if err != nil {
		if err == frame.ErrIncomplete {
			return nil, true, nil
		}
		return nil, false, err
	}
	return data, shouldRetry, nil
}

// SetTimeout sets the response timeout
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", mifare.ErrInvalidParameter)
	}
	t.timeout = timeout
	return nil
}

// Close releases the bus
func (t *Transport) Close() error {
	t.dev = nil
	if t.closer == nil {
		return nil
	}
	closer := t.closer
	t.closer = nil
	if err := closer(); err != nil {
		return fmt.Errorf("failed to close I2C bus %s: %w", t.busName, err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	return t.dev != nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportI2C
}

var _ pn532.ContextTransport = (*Transport)(nil)
