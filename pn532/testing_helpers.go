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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mifare "github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

// MockTransport answers commands from a per-command table. It records
// every command it receives.
type MockTransport struct {
	responses map[byte][]byte
	errs      map[byte]error
	calls     map[byte]int
	sent      [][]byte
	timeout   time.Duration
	mu        sync.Mutex
	closed    bool
}

// NewMockTransport creates a mock transport with no responses configured
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses: make(map[byte][]byte),
		errs:      make(map[byte]error),
		calls:     make(map[byte]int),
		timeout:   time.Second,
	}
}

// SetResponse sets the response returned for cmd
func (m *MockTransport) SetResponse(cmd byte, resp []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[cmd] = resp
	delete(m.errs, cmd)
}

// SetError makes cmd fail with err
func (m *MockTransport) SetError(cmd byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[cmd] = err
}

// ClearError removes a configured error for cmd
func (m *MockTransport) ClearError(cmd byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errs, cmd)
}

// SendCommand returns the configured response or error for cmd
func (m *MockTransport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, mifare.ErrTransportClosed
	}
	m.calls[cmd]++
	m.sent = append(m.sent, append([]byte{cmd}, args...))

	if err, ok := m.errs[cmd]; ok {
		return nil, err
	}
	if resp, ok := m.responses[cmd]; ok {
		return append([]byte(nil), resp...), nil
	}
	return nil, fmt.Errorf("%w: no mock response for command 0x%02X", mifare.ErrCommunicationFailed, cmd)
}

// CallCount returns how often cmd was sent
func (m *MockTransport) CallCount(cmd byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[cmd]
}

// Sent returns every command with its arguments, in order
func (m *MockTransport) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.sent...)
}

// Close marks the transport closed
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetTimeout records the timeout
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return nil
}

// IsConnected returns false once closed
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Type returns TransportMock
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// BlockingMockTransport blocks every command until Unblock is called, the
// timeout expires or the transport is closed.
type BlockingMockTransport struct {
	blockChan    chan struct{}
	ResponseFunc func(cmd byte, data []byte) ([]byte, error)
	Response     []byte
	timeout      time.Duration
	mu           sync.Mutex
	closed       bool
}

// NewBlockingMockTransport creates a new blocking mock transport
func NewBlockingMockTransport() *BlockingMockTransport {
	return &BlockingMockTransport{
		blockChan: make(chan struct{}),
		timeout:   5 * time.Second,
	}
}

// SendCommand blocks until Unblock() is called, timeout expires, or the transport is closed
func (m *BlockingMockTransport) SendCommand(cmd byte, data []byte) ([]byte, error) {
	m.mu.Lock()
	blockChan := m.blockChan
	closed := m.closed
	timeout := m.timeout
	m.mu.Unlock()

	if closed {
		return nil, mifare.ErrTransportClosed
	}

	select {
	case <-blockChan:
	case <-time.After(timeout):
		return nil, mifare.NewTimeoutError("SendCommand", "mock")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, mifare.ErrTransportClosed
	}
	if m.ResponseFunc != nil {
		return m.ResponseFunc(cmd, data)
	}
	if m.Response != nil {
		return append([]byte(nil), m.Response...), nil
	}
	return []byte{cmd + 1}, nil
}

// Unblock allows blocked SendCommand calls to proceed
func (m *BlockingMockTransport) Unblock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		close(m.blockChan)
		m.blockChan = make(chan struct{})
	}
}

// Close unblocks all operations and marks transport as closed
func (m *BlockingMockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.blockChan)
	}
	return nil
}

// SetTimeout configures the timeout for blocking operations
func (m *BlockingMockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return nil
}

// IsConnected returns false once closed
func (m *BlockingMockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Type returns TransportMock
func (*BlockingMockTransport) Type() TransportType {
	return TransportMock
}

// SimulatedChip is a PN532 in front of a tag simulator. It implements the
// commands Reader uses, keeps the CIU registers, and carries
// InCommunicateThru raw streams to and from Tag.
type SimulatedChip struct {
	Tag      mifare.Transceiver
	regs     map[uint16]byte
	failNext map[byte]error
	commands []byte
	mu       sync.Mutex
	field    bool
	closed   bool
}

// NewSimulatedChip returns a chip in its power-on configuration with tag
// in front of its antenna.
func NewSimulatedChip(tag mifare.Transceiver) *SimulatedChip {
	return &SimulatedChip{
		Tag: tag,
		regs: map[uint16]byte{
			regTxMode:   bitCRCEn,
			regRxMode:   bitCRCEn,
			regStatus2:  bitMFCrypto1On,
			regBitFrame: 0,
		},
		failNext: make(map[byte]error),
	}
}

// FailNext makes the next cmd fail with err on the host link
func (c *SimulatedChip) FailNext(cmd byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext[cmd] = err
}

// Commands returns the command codes received so far
func (c *SimulatedChip) Commands() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.commands...)
}

// Register returns the current value of a CIU register
func (c *SimulatedChip) Register(addr uint16) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[addr]
}

// FieldOn reports whether the RF field is on
func (c *SimulatedChip) FieldOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.field
}

// SendCommand executes one PN532 command
func (c *SimulatedChip) SendCommand(cmd byte, args []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, mifare.ErrTransportClosed
	}
	c.commands = append(c.commands, cmd)
	if err, ok := c.failNext[cmd]; ok {
		delete(c.failNext, cmd)
		return nil, err
	}

	switch cmd {
	case cmdGetFirmwareVersion:
		return []byte{cmd + 1, 0x32, 0x01, 0x06, 0x07}, nil
	case cmdSamConfiguration:
		return []byte{cmd + 1}, nil
	case cmdRFConfiguration:
		if len(args) >= 2 && args[0] == rfItemField {
			c.field = args[1]&rfFieldOn != 0
		}
		return []byte{cmd + 1}, nil
	case cmdReadRegister:
		resp := []byte{cmd + 1}
		for i := 0; i+1 < len(args); i += 2 {
			resp = append(resp, c.regs[uint16(args[i])<<8|uint16(args[i+1])])
		}
		return resp, nil
	case cmdWriteRegister:
		for i := 0; i+2 < len(args); i += 3 {
			c.regs[uint16(args[i])<<8|uint16(args[i+1])] = args[i+2]
		}
		return []byte{cmd + 1}, nil
	case cmdInCommunicateThru:
		return c.communicateThru(args), nil
	default:
		return []byte{0x7F}, nil
	}
}

func (c *SimulatedChip) communicateThru(args []byte) []byte {
	resp := []byte{cmdInCommunicateThru + 1}
	switch {
	case !c.field:
		return append(resp, statusNoField)
	case c.regs[regTxMode]&bitCRCEn != 0 || c.regs[regRxMode]&bitCRCEn != 0,
		c.regs[regManualRCV]&bitParityDisable == 0,
		c.regs[regStatus2]&bitMFCrypto1On != 0:
		// Not in raw mode: the chip would mangle the stream.
		return append(resp, statusProtocol)
	case len(args) == 0:
		return append(resp, statusProtocol)
	}

	rawBits := len(args) * 8
	if last := int(c.regs[regBitFrame] & maskTxLastBits); last != 0 {
		rawBits = (len(args)-1)*8 + last
	}
	tx := iso14443a.Unwrap(args, rawBits, 0)

	rx, err := c.Tag.TransceiveBits(context.Background(), tx)
	var ce *iso14443a.CollisionError
	switch {
	case errors.As(err, &ce):
		raw, rb := iso14443a.Wrap(ce.Received)
		c.regs[regControl] = byte(rb % 8)
		rawPos := ce.Pos + ce.Pos/8
		switch {
		case rawPos >= 32:
			c.regs[regColl] = bitCollPosInvalid
		default:
			c.regs[regColl] = byte(rawPos+1) & maskCollPos
		}
		resp = append(resp, statusCollision)
		return append(resp, raw...)
	case err != nil:
		return append(resp, statusTimeout)
	}

	raw, rb := iso14443a.Wrap(rx)
	c.regs[regControl] = byte(rb % 8)
	resp = append(resp, statusOK)
	return append(resp, raw...)
}

// Close marks the chip closed
func (c *SimulatedChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// SetTimeout is accepted and ignored
func (*SimulatedChip) SetTimeout(time.Duration) error { return nil }

// IsConnected returns false once closed
func (c *SimulatedChip) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Type returns TransportMock
func (*SimulatedChip) Type() TransportType {
	return TransportMock
}

var (
	_ Transport = (*MockTransport)(nil)
	_ Transport = (*BlockingMockTransport)(nil)
	_ Transport = (*SimulatedChip)(nil)
)
