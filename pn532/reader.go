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

// Package pn532 turns a PN532 NFC controller into a mifare.Transceiver.
//
// The chip is switched to raw mode: hardware CRC, parity and CRYPTO1 are
// disabled and every frame goes through InCommunicateThru as a packed bit
// stream with the parity bits interleaved. The mifare session does the rest
// on the host.
package pn532

import (
	"context"
	"fmt"
	"time"

	mifare "github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

// FirmwareVersion is the answer to GetFirmwareVersion
type FirmwareVersion struct {
	IC       byte
	Version  byte
	Revision byte
	Support  byte
}

func (f *FirmwareVersion) String() string {
	return fmt.Sprintf("PN5%02X v%d.%d", f.IC, f.Version, f.Revision)
}

// SupportsISO14443A reports whether the firmware drives ISO14443-A targets
func (f *FirmwareVersion) SupportsISO14443A() bool {
	return f.Support&0x01 != 0
}

// Reader drives a PN532 in raw mode.
//
// Thread Safety: Reader is NOT thread-safe, and neither is the mifare
// session on top of it.
type Reader struct {
	transport ContextTransport
	config    *Config
	firmware  *FirmwareVersion
	regs      map[uint16]byte
}

// NewReader wraps transport. Call Init before the first exchange.
func NewReader(transport Transport, opts ...Option) (*Reader, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", mifare.ErrInvalidParameter)
	}
	r := &Reader{
		config: DefaultConfig(),
		regs:   make(map[uint16]byte),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if err := transport.SetTimeout(r.config.Timeout); err != nil {
		return nil, fmt.Errorf("failed to set transport timeout: %w", err)
	}
	r.transport = WithContext(transport, r.config.Timeout)
	return r, nil
}

// Init checks the firmware, leaves SAM-less normal mode, sets the RF
// timeout, switches the CIU to raw mode and turns the field on.
func (r *Reader) Init(ctx context.Context) error {
	fw, err := r.FirmwareVersion(ctx)
	if err != nil {
		return err
	}
	if fw.IC != 0x32 || !fw.SupportsISO14443A() {
		return fmt.Errorf("%w: %s", mifare.ErrDeviceNotSupported, fw)
	}
	debugf("found %s", fw)

	if _, err := r.command(ctx, cmdSamConfiguration, []byte{0x01, 0x14, 0x01}); err != nil {
		return fmt.Errorf("SAM configuration failed: %w", err)
	}

	timings := []byte{rfItemTimings, 0x00, atrResTimeout, timeoutCode(r.config.RFTimeout)}
	if _, err := r.command(ctx, cmdRFConfiguration, timings); err != nil {
		return fmt.Errorf("RF timing configuration failed: %w", err)
	}
	// One try per InCommunicateThru; the session decides what to repeat.
	if _, err := r.command(ctx, cmdRFConfiguration, []byte{rfItemRetries, 0x00, 0x01, 0x00}); err != nil {
		return fmt.Errorf("RF retry configuration failed: %w", err)
	}

	if err := r.enterRawMode(ctx); err != nil {
		return err
	}
	return r.SetField(ctx, true)
}

// FirmwareVersion queries the chip. The result is cached after the first
// successful call.
func (r *Reader) FirmwareVersion(ctx context.Context) (*FirmwareVersion, error) {
	if r.firmware != nil {
		return r.firmware, nil
	}
	resp, err := r.command(ctx, cmdGetFirmwareVersion, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get firmware version: %w", err)
	}
	if len(resp) < 5 {
		return nil, fmt.Errorf("%w: firmware version response of %d bytes", mifare.ErrFrameCorrupted, len(resp))
	}
	r.firmware = &FirmwareVersion{IC: resp[1], Version: resp[2], Revision: resp[3], Support: resp[4]}
	return r.firmware, nil
}

// SetField switches the RF field. Turning it off and on again resets every
// tag in range to power-on state.
func (r *Reader) SetField(ctx context.Context, on bool) error {
	val := byte(rfFieldOff)
	if on {
		val = rfFieldOn
	}
	if _, err := r.command(ctx, cmdRFConfiguration, []byte{rfItemField, val}); err != nil {
		return fmt.Errorf("RF field configuration failed: %w", err)
	}
	return nil
}

// Close turns the field off and closes the transport
func (r *Reader) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
	defer cancel()
	if err := r.SetField(ctx, false); err != nil {
		debugf("field off on close: %v", err)
	}
	if err := r.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// TransceiveBits sends tx and returns the tag's answer. It implements
// mifare.Transceiver.
func (r *Reader) TransceiveBits(ctx context.Context, tx iso14443a.Frame) (iso14443a.Frame, error) {
	raw, rawBits := iso14443a.Wrap(tx)
	if len(raw) > maxThruData {
		return iso14443a.Frame{}, mifare.NewDataTooLargeError("TransceiveBits", string(r.transport.Type()))
	}

	// Answers to anticollision frames continue the partial last byte.
	align := 0
	if !tx.IsShort() {
		align = tx.Bits % 8
	}
	framing := byte(rawBits%8)&maskTxLastBits | byte(align<<4)&maskRxAlign
	if err := r.writeRegisters(ctx, map[uint16]byte{regBitFrame: framing}); err != nil {
		return iso14443a.Frame{}, err
	}

	resp, err := r.transport.SendCommandContext(ctx, cmdInCommunicateThru, raw)
	if err != nil {
		return iso14443a.Frame{}, fmt.Errorf("InCommunicateThru: %w", err)
	}
	if len(resp) < 2 || resp[0] != cmdInCommunicateThru+1 {
		return iso14443a.Frame{}, fmt.Errorf("%w: unexpected InCommunicateThru response % X", mifare.ErrFrameCorrupted, resp)
	}

	status, data := resp[1]&statusMask, resp[2:]
	switch status {
	case statusOK:
		if len(data) == 0 {
			return iso14443a.Frame{}, fmt.Errorf("InCommunicateThru: %w", mifare.ErrNoResponse)
		}
		rxBits, err := r.receivedBits(ctx, data)
		if err != nil {
			return iso14443a.Frame{}, err
		}
		return iso14443a.Unwrap(data, rxBits, align), nil
	case statusCollision:
		return iso14443a.Frame{}, r.collision(ctx, data, align)
	default:
		return iso14443a.Frame{}, &StatusError{Cmd: cmdInCommunicateThru, Status: status}
	}
}

// receivedBits returns the length of the raw stream in data, counting the
// alignment filler, from the RxLastBits field.
func (r *Reader) receivedBits(ctx context.Context, data []byte) (int, error) {
	vals, err := r.readRegisters(ctx, regControl)
	if err != nil {
		return 0, err
	}
	if last := int(vals[0] & maskRxLastBits); last != 0 {
		return (len(data)-1)*8 + last, nil
	}
	return len(data) * 8, nil
}

// collision builds the CollisionError for a colliding answer. CollPos
// counts raw stream bits from 1, alignment filler included, with 0
// standing for bit 32.
func (r *Reader) collision(ctx context.Context, data []byte, align int) error {
	vals, err := r.readRegisters(ctx, regColl, regControl)
	if err != nil {
		return err
	}

	rawBits := len(data) * 8
	if last := int(vals[1] & maskRxLastBits); last != 0 && len(data) > 0 {
		rawBits = (len(data)-1)*8 + last
	}

	rawPos := rawBits
	if vals[0]&bitCollPosInvalid == 0 {
		rawPos = int(vals[0]&maskCollPos) - 1
		if rawPos < 0 {
			rawPos = 31
		}
	}
	return &iso14443a.CollisionError{
		Received: iso14443a.Unwrap(data, rawBits, align),
		Pos:      rawToFramePos(rawPos),
	}
}

// rawToFramePos drops the interleaved parity bits from a raw stream index.
func rawToFramePos(raw int) int {
	return raw - raw/9
}

// enterRawMode clears hardware CRC and crypto and hands parity to the host.
func (r *Reader) enterRawMode(ctx context.Context) error {
	vals, err := r.readRegisters(ctx, regTxMode, regRxMode, regManualRCV, regStatus2)
	if err != nil {
		return fmt.Errorf("failed to read CIU registers: %w", err)
	}
	err = r.writeRegisters(ctx, map[uint16]byte{
		regTxMode:    vals[0] &^ bitCRCEn,
		regRxMode:    vals[1] &^ bitCRCEn,
		regManualRCV: vals[2] | bitParityDisable,
		regStatus2:   vals[3] &^ bitMFCrypto1On,
	})
	if err != nil {
		return fmt.Errorf("failed to enter raw mode: %w", err)
	}
	return nil
}

func (r *Reader) readRegisters(ctx context.Context, addrs ...uint16) ([]byte, error) {
	args := make([]byte, 0, 2*len(addrs))
	for _, a := range addrs {
		args = append(args, byte(a>>8), byte(a))
	}
	resp, err := r.command(ctx, cmdReadRegister, args)
	if err != nil {
		return nil, fmt.Errorf("ReadRegister: %w", err)
	}
	// PN532 firmware answers with just the values.
	vals := resp[1:]
	if len(vals) < len(addrs) {
		return nil, fmt.Errorf("%w: %d register values for %d addresses", mifare.ErrFrameCorrupted, len(vals), len(addrs))
	}
	for i, a := range addrs {
		r.regs[a] = vals[i]
	}
	return vals, nil
}

// writeRegisters writes the registers whose cached value differs.
func (r *Reader) writeRegisters(ctx context.Context, vals map[uint16]byte) error {
	var args []byte
	for a, v := range vals {
		if cur, ok := r.regs[a]; ok && cur == v {
			continue
		}
		args = append(args, byte(a>>8), byte(a), v)
	}
	if len(args) == 0 {
		return nil
	}
	if _, err := r.command(ctx, cmdWriteRegister, args); err != nil {
		return fmt.Errorf("WriteRegister: %w", err)
	}
	for a, v := range vals {
		r.regs[a] = v
	}
	return nil
}

// command sends a host-side command with retries and checks the response
// code. It must not be used for anything that reaches the tag.
func (r *Reader) command(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	var resp []byte
	err := RetryWithConfig(ctx, r.config.RetryConfig, func() error {
		var err error
		resp, err = r.transport.SendCommandContext(ctx, cmd, args)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 || resp[0] != cmd+1 {
		return nil, fmt.Errorf("%w: unexpected response % X to command 0x%02X", mifare.ErrFrameCorrupted, resp, cmd)
	}
	return resp, nil
}

// timeoutCode converts d to the RFConfiguration timeout encoding:
// code n stands for 100µs * 2^(n-1).
func timeoutCode(d time.Duration) byte {
	step := 100 * time.Microsecond
	for code := byte(1); code < maxTimeoutCode; code++ {
		if step >= d {
			return code
		}
		step *= 2
	}
	return maxTimeoutCode
}

var _ mifare.Transceiver = (*Reader)(nil)
