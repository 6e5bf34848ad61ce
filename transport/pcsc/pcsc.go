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

// Package pcsc reaches a PN532 behind an ACR122U-class PC/SC reader. The
// reader forwards PN532 host commands wrapped in a direct transmit pseudo
// APDU, so the pn532 adapter works unchanged on top of it.
package pcsc

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ebfe/scard"

	mifare "github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/internal/frame"
	"github.com/ZaparooProject/go-mfclassic/pn532"
)

// IOCTL_CCID_ESCAPE as pcsc-lite encodes SCARD_CTL_CODE(3500).
const ioctlCCIDEscape uint32 = 0x42000000 + 3500

const (
	claDirect  = 0xFF
	maxPayload = 255
)

var (
	statusOK    = []byte{0x90, 0x00}
	statusError = []byte{0x63, 0x00}
)

// card is the part of *scard.Card the transport uses.
type card interface {
	Control(ioctl uint32, in []byte) ([]byte, error)
	Disconnect(d scard.Disposition) error
}

// Transport implements pn532.Transport over a PC/SC direct connection.
type Transport struct {
	ctx     *scard.Context
	card    card
	reader  string
	timeout time.Duration
}

// Readers lists the PC/SC reader names.
func Readers() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish PC/SC context: %w", err)
	}
	defer func() { _ = ctx.Release() }()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("failed to list readers: %w", err)
	}
	return readers, nil
}

// New connects directly to the reader at readerIndex. No card needs to be
// present.
func New(readerIndex int) (*Transport, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish PC/SC context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		_ = ctx.Release()
		return nil, fmt.Errorf("%w: no PC/SC readers: %v", mifare.ErrDeviceNotFound, err)
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		_ = ctx.Release()
		return nil, fmt.Errorf("%w: reader index %d out of range (0..%d)",
			mifare.ErrInvalidParameter, readerIndex, len(readers)-1)
	}

	reader := readers[readerIndex]
	c, err := ctx.Connect(reader, scard.ShareDirect, scard.ProtocolUndefined)
	if err != nil {
		_ = ctx.Release()
		return nil, fmt.Errorf("failed to connect to %s: %w", reader, err)
	}

	t := newWithCard(c, reader)
	t.ctx = ctx
	return t, nil
}

func newWithCard(c card, reader string) *Transport {
	return &Transport{card: c, reader: reader, timeout: time.Second}
}

// Reader returns the PC/SC reader name.
func (t *Transport) Reader() string {
	return t.reader
}

// SendCommand sends cmd to the PN532 inside the reader. The response starts
// at the PN532 response code, as on the other links.
func (t *Transport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	if t.card == nil {
		return nil, mifare.NewTransportError("SendCommand", t.reader, mifare.ErrTransportClosed, mifare.ErrorTypePermanent)
	}
	if len(args)+2 > maxPayload {
		return nil, mifare.NewDataTooLargeError("SendCommand", t.reader)
	}

	apdu := make([]byte, 0, 5+2+len(args))
	apdu = append(apdu, claDirect, 0x00, 0x00, 0x00, byte(len(args)+2), frame.HostToPn532, cmd)
	apdu = append(apdu, args...)

	resp, err := t.card.Control(ioctlCCIDEscape, apdu)
	if err != nil {
		return nil, mifare.NewTransportError("SendCommand", t.reader,
			fmt.Errorf("%w: %w", mifare.ErrCommunicationFailed, err), mifare.ErrorTypeTransient)
	}
	return t.parse(cmd, resp)
}

func (t *Transport) parse(cmd byte, resp []byte) ([]byte, error) {
	if bytes.Equal(resp, statusError) {
		return nil, mifare.NewTransportError("SendCommand", t.reader,
			fmt.Errorf("%w: reader rejected command 0x%02X", mifare.ErrCommunicationFailed, cmd), mifare.ErrorTypeTransient)
	}
	resp = bytes.TrimSuffix(resp, statusOK)
	if len(resp) < 2 || resp[0] != frame.Pn532ToHost {
		return nil, mifare.NewFrameCorruptedError("SendCommand", t.reader)
	}
	return resp[1:], nil
}

// SetTimeout records the response timeout. PC/SC applies its own timeouts
// to control transfers, so the value is informational.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", mifare.ErrInvalidParameter)
	}
	t.timeout = timeout
	return nil
}

// Close disconnects and releases the PC/SC context.
func (t *Transport) Close() error {
	var err error
	if t.card != nil {
		err = t.card.Disconnect(scard.LeaveCard)
		t.card = nil
	}
	if t.ctx != nil {
		if rerr := t.ctx.Release(); err == nil {
			err = rerr
		}
		t.ctx = nil
	}
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", t.reader, err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	return t.card != nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportPCSC
}

var _ pn532.Transport = (*Transport)(nil)
