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

// Package libnfc adapts a libnfc initiator to mifare.Transceiver.
//
// libnfc moves raw bit frames through nfc_initiator_transceive_bits once
// CRC and parity handling are off. It does not report where a collision
// happened, so anticollision among several tags fails with ErrCollision
// instead of being resolved; single tag fields work fully.
package libnfc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clausecker/nfc/v2"

	mifare "github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

// maxFrame is the largest answer accepted, in bytes.
const maxFrame = 64

// device is the part of *nfc.Device the adapter uses.
type device interface {
	InitiatorInit() error
	SetPropertyBool(property int, value bool) error
	SetPropertyInt(property, value int) error
	InitiatorTransceiveBits(tx, txPar []byte, txLength uint, rx, rxPar []byte) (int, error)
	Close() error
	String() string
}

// Reader is a libnfc device in raw initiator mode.
type Reader struct {
	dev     device
	timeout time.Duration
}

// Open opens the libnfc device at connstring ("" for the first one) and
// puts it in raw initiator mode.
func Open(connstring string) (*Reader, error) {
	dev, err := nfc.Open(connstring)
	if err != nil {
		return nil, fmt.Errorf("%w: libnfc %q: %w", mifare.ErrDeviceNotFound, connstring, err)
	}
	r, err := newReader(dev)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	return r, nil
}

func newReader(dev device) (*Reader, error) {
	if err := dev.InitiatorInit(); err != nil {
		return nil, fmt.Errorf("libnfc initiator init on %s: %w", dev, err)
	}
	props := []struct {
		prop  int
		value bool
	}{
		{nfc.ActivateField, false},
		{nfc.HandleCRC, false},
		{nfc.HandleParity, false},
		{nfc.ActivateCrypto1, false},
		{nfc.EasyFraming, false},
		{nfc.AutoISO14443_4, false},
		{nfc.InfiniteSelect, false},
		{nfc.ActivateField, true},
	}
	for _, p := range props {
		if err := dev.SetPropertyBool(p.prop, p.value); err != nil {
			return nil, fmt.Errorf("libnfc property %d on %s: %w", p.prop, dev, err)
		}
	}
	mifare.Debugf("libnfc: %s ready for raw frames", dev)
	return &Reader{dev: dev}, nil
}

// TransceiveBits sends tx with its parity bits as given and returns the
// answer. The deadline of ctx becomes the libnfc command timeout.
func (r *Reader) TransceiveBits(ctx context.Context, tx iso14443a.Frame) (iso14443a.Frame, error) {
	if err := ctx.Err(); err != nil {
		return iso14443a.Frame{}, err
	}
	if r.dev == nil {
		return iso14443a.Frame{}, mifare.NewTransportError("TransceiveBits", "libnfc", mifare.ErrTransportClosed, mifare.ErrorTypePermanent)
	}
	if tx.Bits == 0 || len(tx.Data) == 0 {
		return iso14443a.Frame{}, fmt.Errorf("%w: empty frame", mifare.ErrInvalidParameter)
	}
	if err := r.applyDeadline(ctx); err != nil {
		return iso14443a.Frame{}, err
	}

	txPar := make([]byte, len(tx.Data))
	copy(txPar, tx.Parity)
	rx := make([]byte, maxFrame)
	rxPar := make([]byte, maxFrame)

	n, err := r.dev.InitiatorTransceiveBits(tx.Data, txPar, uint(tx.Bits), rx, rxPar)
	if err != nil {
		return iso14443a.Frame{}, mapError(err)
	}

	ans := iso14443a.Frame{Data: rx[:(n+7)/8], Parity: rxPar[:n/8], Bits: n}
	align := 0
	if !tx.IsShort() {
		align = tx.Bits % 8
	}
	if align == 0 {
		return ans, nil
	}
	// libnfc split the stream into bytes from the first received bit; the
	// answer really continues the last request byte.
	raw, rawBits := iso14443a.Wrap(ans)
	raw, rawBits = shiftStream(raw, rawBits, align)
	return iso14443a.Unwrap(raw, rawBits, align), nil
}

// applyDeadline sets the libnfc command timeout from ctx, rounded up to a
// millisecond. Unchanged values are not written again.
func (r *Reader) applyDeadline(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	d := time.Until(deadline)
	if d <= 0 {
		return context.DeadlineExceeded
	}
	d = (d + time.Millisecond - 1).Truncate(time.Millisecond)
	if d == r.timeout {
		return nil
	}
	if err := r.dev.SetPropertyInt(nfc.TimeoutCommand, int(d/time.Millisecond)); err != nil {
		return mifare.NewTransportError("SetTimeout", "libnfc", err, mifare.ErrorTypeTransient)
	}
	r.timeout = d
	return nil
}

// shiftStream prepends n zero bits to a bit stream.
func shiftStream(raw []byte, rawBits, n int) ([]byte, int) {
	out := make([]byte, (rawBits+n+7)/8)
	for i := 0; i < rawBits; i++ {
		if raw[i/8]>>uint(i%8)&1 == 1 {
			j := i + n
			out[j/8] |= 1 << uint(j%8)
		}
	}
	return out, rawBits + n
}

func mapError(err error) error {
	var code nfc.Error
	if !errors.As(err, &code) {
		return mifare.NewTransportError("TransceiveBits", "libnfc", err, mifare.ErrorTypePermanent)
	}
	switch code {
	case nfc.ETIMEOUT:
		return fmt.Errorf("libnfc: %w", iso14443a.ErrNoResponse)
	case nfc.ERFTRANS:
		return fmt.Errorf("libnfc: %w: %w", iso14443a.ErrCollision, err)
	case nfc.EIO, nfc.ENOTSUCHDEV:
		return mifare.NewTransportError("TransceiveBits", "libnfc", err, mifare.ErrorTypePermanent)
	default:
		return mifare.NewTransportError("TransceiveBits", "libnfc",
			fmt.Errorf("%w: %w", mifare.ErrCommunicationFailed, err), mifare.ErrorTypeTransient)
	}
}

// Close switches the field off and closes the device.
func (r *Reader) Close() error {
	if r.dev == nil {
		return nil
	}
	dev := r.dev
	r.dev = nil
	if err := dev.SetPropertyBool(nfc.ActivateField, false); err != nil {
		mifare.Debugf("libnfc: field off: %v", err)
	}
	if err := dev.Close(); err != nil {
		return fmt.Errorf("failed to close libnfc device: %w", err)
	}
	return nil
}

var _ mifare.Transceiver = (*Reader)(nil)
