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

// Package uart provides the PN532 host link over a serial port (HSU).
package uart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	mifare "github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/internal/frame"
	"github.com/ZaparooProject/go-mfclassic/internal/transport"
	"github.com/ZaparooProject/go-mfclassic/pn532"
)

const (
	baudRate       = 115200
	defaultTimeout = time.Second
	ackTimeout     = 50 * time.Millisecond
	readChunk      = 10 * time.Millisecond
	maxNackRetries = 3
)

// wakeup brings the PN532 out of power-down; HSU needs a long preamble
// before the first frame.
var wakeup = []byte{0x55, 0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// Transport implements pn532.Transport over a serial port
type Transport struct {
	port     serial.Port
	portName string
	pending  []byte
	timeout  time.Duration
	mu       sync.Mutex
	awake    bool
}

// New opens portName at 115200 8N1
func New(portName string) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return newWithPort(port, portName), nil
}

func newWithPort(port serial.Port, portName string) *Transport {
	return &Transport{
		port:     port,
		portName: portName,
		timeout:  defaultTimeout,
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

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, mifare.NewTransportError("SendCommand", t.portName, mifare.ErrTransportClosed, mifare.ErrorTypePermanent)
	}

	frm, err := frame.Build(cmd, args)
	if err != nil {
		return nil, err
	}
	if !t.awake {
		if err := t.write(wakeup); err != nil {
			return nil, err
		}
		t.awake = true
	}

	t.pending = nil
	if err := t.port.ResetInputBuffer(); err != nil {
		return nil, mifare.NewTransportError("resetInput", t.portName, err, mifare.ErrorTypeTransient)
	}
	if err := t.write(frm); err != nil {
		return nil, err
	}
	if err := t.waitAck(ctx); err != nil {
		return nil, err
	}

	return transport.WithRetry(transport.RetryConfig{
		Description: "receiveFrame",
		Port:        t.portName,
		MaxRetries:  maxNackRetries,
		OnRetry: func() error {
			t.pending = nil
			return t.write(frame.NackFrame)
		},
	}, func() ([]byte, bool, error) {
		return t.receiveFrame(ctx)
	})
}

func (t *Transport) write(data []byte) error {
	if _, err := t.port.Write(data); err != nil {
		return mifare.NewTransportError("write", t.portName, errors.Join(mifare.ErrTransportWrite, err), mifare.ErrorTypeTransient)
	}
	return nil
}

// waitAck reads until an ACK arrives. Bytes after the ACK are kept for
// the response.
func (t *Transport) waitAck(ctx context.Context) error {
	deadline := time.Now().Add(ackTimeout)
	for {
		if idx := bytes.Index(t.pending, frame.AckFrame[1:]); idx >= 0 {
			t.pending = t.pending[idx+len(frame.AckFrame)-1:]
			return nil
		}
		if frame.IsNack(t.pending) {
			return mifare.NewNoACKError("waitAck", t.portName)
		}
		if time.Now().After(deadline) {
			return mifare.NewNoACKError("waitAck", t.portName)
		}
		if err := t.readMore(ctx); err != nil {
			return err
		}
	}
}

// receiveFrame reads until one complete response frame is buffered.
func (t *Transport) receiveFrame(ctx context.Context) (data []byte, shouldRetry bool, err error) {
	deadline := time.Now().Add(t.timeout)
	for {
		data, shouldRetry, err = frame.Parse(t.pending)
		if !errors.Is(err, frame.ErrIncomplete) {
			return data, shouldRetry, err
		}
		if time.Now().After(deadline) {
			return nil, false, mifare.NewTimeoutError("receiveFrame", t.portName)
		}
		if err := t.readMore(ctx); err != nil {
			return nil, false, err
		}
	}
}

func (t *Transport) readMore(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.port.SetReadTimeout(readChunk); err != nil {
		return mifare.NewTransportError("setReadTimeout", t.portName, err, mifare.ErrorTypePermanent)
	}
	buf := make([]byte, 64)
	n, err := t.port.Read(buf)
	if err != nil {
		return mifare.NewTransportError("read", t.portName, errors.Join(mifare.ErrTransportRead, err), mifare.ErrorTypeTransient)
	}
	t.pending = append(t.pending, buf[:n]...)
	return nil
}

// SetTimeout sets the response timeout
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", mifare.ErrInvalidParameter)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close closes the serial port
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", t.portName, err)
	}
	return nil
}

// IsConnected returns true while the port is open
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportUART
}

var _ pn532.ContextTransport = (*Transport)(nil)
