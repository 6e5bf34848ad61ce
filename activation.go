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

package mifare

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

// maxAnticollisionLoops bounds the bit-prefix search per cascade level: one
// round per UID bit is the most a converging search can take.
const maxAnticollisionLoops = 32

// RequestStandard sends REQA. Only tags in the IDLE state answer. It returns
// the ATQA.
func (s *Session) RequestStandard(ctx context.Context) ([2]byte, error) {
	if err := s.require("REQA", StateIdle); err != nil {
		return [2]byte{}, err
	}
	return s.request(ctx, iso14443a.CmdREQA)
}

// RequestWakeup sends WUPA, which also wakes halted tags. It returns the
// ATQA.
func (s *Session) RequestWakeup(ctx context.Context) ([2]byte, error) {
	if err := s.require("WUPA", StateIdle, StateHalted); err != nil {
		return [2]byte{}, err
	}
	return s.request(ctx, iso14443a.CmdWUPA)
}

func (s *Session) request(ctx context.Context, cmd byte) ([2]byte, error) {
	s.Reset()

	rx, err := s.exchange(ctx, iso14443a.ShortFrame(cmd))
	var ce *iso14443a.CollisionError
	switch {
	case errors.As(err, &ce):
		// Several tags answered. ATQA bits differ between tag types, which
		// is harmless here; anticollision sorts them out.
		rx = ce.Received
		rx.Bits = 16
	case isTimeout(err):
		return [2]byte{}, s.fail(fmt.Errorf("request 0x%02X: %w", cmd, ErrNoTagPresent))
	case err != nil:
		return [2]byte{}, s.fail(airError("request", err))
	default:
		if rx.Bits != 16 {
			return [2]byte{}, s.fail(fmt.Errorf("request: %w: ATQA of %d bits", ErrProtocolViolation, rx.Bits))
		}
		if _, err := iso14443a.Decode(rx); err != nil {
			return [2]byte{}, s.fail(fmt.Errorf("request: ATQA: %w", err))
		}
	}

	if len(rx.Data) >= 2 {
		s.atqa = [2]byte{rx.Data[0], rx.Data[1]}
	}
	s.state = StateRequested
	s.level = 1
	return s.atqa, nil
}

// Anticollide runs the bit-prefix search for cascade level (1..3) and returns
// the 4-byte fragment of that level, cascade tag included. When several tags
// collide the search follows the 1 branch.
func (s *Session) Anticollide(ctx context.Context, level int) ([]byte, error) {
	if err := s.require("anticollision", StateRequested); err != nil {
		return nil, err
	}
	if level != s.level {
		return nil, fmt.Errorf("anticollision: %w: expected cascade level %d, got %d",
			ErrInvalidParameter, s.level, level)
	}
	sel := iso14443a.SelectCommand(level)

	// UID bytes of this level plus BCC
	var known [5]byte
	nKnown := 0

	for range maxAnticollisionLoops {
		req := append([]byte{sel, iso14443a.NVB(nKnown)}, known[:(nKnown+7)/8]...)
		tx := iso14443a.EncodeBits(req, 16+nKnown)

		rx, err := s.exchange(ctx, tx)
		var ce *iso14443a.CollisionError
		if errors.As(err, &ce) {
			next, cerr := resolveCollision(&known, nKnown, ce)
			if cerr != nil {
				return nil, s.fail(cerr)
			}
			nKnown = next
			continue
		}
		if err != nil {
			return nil, s.fail(airError("anticollision", err))
		}

		if err := mergeAnswer(&known, nKnown, rx); err != nil {
			return nil, s.fail(fmt.Errorf("anticollision: %w", err))
		}
		if iso14443a.BCC(known[:4]) != known[4] {
			return nil, s.fail(fmt.Errorf("anticollision level %d: %w", level, ErrBccMismatch))
		}

		s.fragment = append([]byte(nil), known[:4]...)
		s.state = StateAnticollided
		return append([]byte(nil), s.fragment...), nil
	}

	return nil, s.fail(fmt.Errorf("anticollision level %d: %w after %d rounds",
		level, ErrCollisionUnresolved, maxAnticollisionLoops))
}

// mergeAnswer ORs a collision free answer into known. The answer starts at
// the byte holding bit nKnown; for split frames its first nKnown%8 bits are
// zero and the known bits fill them in before parity is checked.
func mergeAnswer(known *[5]byte, nKnown int, rx iso14443a.Frame) error {
	start := nKnown / 8
	wantBits := (len(known) - start) * 8
	if rx.Bits != wantBits || len(rx.Data) < len(known)-start || len(rx.Parity) < len(known)-start {
		return fmt.Errorf("%w: %d answer bits, expected %d", ErrProtocolViolation, rx.Bits, wantBits)
	}
	for i := 0; start+i < len(known); i++ {
		known[start+i] |= rx.Data[i]
		if rx.Parity[i]&1 != iso14443a.OddParity(known[start+i]) {
			return &iso14443a.FrameError{Index: i, Err: ErrParityMismatch}
		}
	}
	return nil
}

// resolveCollision keeps the bits received before the collision, picks 1 for
// the colliding bit and returns the new number of known bits.
func resolveCollision(known *[5]byte, nKnown int, ce *iso14443a.CollisionError) (int, error) {
	start := nKnown / 8
	align := nKnown % 8
	if ce.Pos < align {
		return 0, fmt.Errorf("anticollision: %w: collision at bit %d inside known prefix",
			ErrProtocolViolation, ce.Pos)
	}
	next := start*8 + ce.Pos + 1
	if next > 32 {
		return 0, fmt.Errorf("anticollision: %w: collision at UID bit %d", ErrCollisionUnresolved, next-1)
	}

	for bit := align; bit < ce.Pos; bit++ {
		idx := bit / 8
		if idx >= len(ce.Received.Data) {
			break
		}
		if ce.Received.Data[idx]>>uint(bit%8)&1 == 1 {
			abs := start*8 + bit
			known[abs/8] |= 1 << uint(abs%8)
		}
	}
	abs := start*8 + ce.Pos
	known[abs/8] |= 1 << uint(abs%8)
	return next, nil
}

// Select sends SELECT for fragment at the given cascade level and returns
// the SAK. A SAK with the cascade bit set means the UID continues: the
// session goes back to StateRequested at the next level. Otherwise it is
// StateSelected and Target is available.
//
// Select is legal straight after a request for callers that already know
// the UID.
func (s *Session) Select(ctx context.Context, level int, fragment []byte) (byte, error) {
	if err := s.require("select", StateRequested, StateAnticollided); err != nil {
		return 0, err
	}
	if level != s.level {
		return 0, fmt.Errorf("select: %w: expected cascade level %d, got %d",
			ErrInvalidParameter, s.level, level)
	}
	if len(fragment) != 4 {
		return 0, fmt.Errorf("select: %w: fragment must be 4 bytes, got %d", ErrInvalidParameter, len(fragment))
	}

	cmd := []byte{iso14443a.SelectCommand(level), iso14443a.NVBSelect}
	cmd = append(cmd, fragment...)
	cmd = append(cmd, iso14443a.BCC(fragment))

	rx, err := s.exchange(ctx, iso14443a.EncodeCommand(cmd))
	if err != nil {
		return 0, s.fail(airError("select", err))
	}
	resp, err := iso14443a.DecodeCommand(rx)
	if err != nil {
		return 0, s.fail(fmt.Errorf("select: SAK: %w", err))
	}
	if len(resp) != 1 {
		return 0, s.fail(fmt.Errorf("select: %w: SAK of %d bytes", ErrProtocolViolation, len(resp)))
	}
	sak := resp[0]

	if sak&iso14443a.SAKCascadeBit != 0 {
		if fragment[0] != iso14443a.CascadeTag || level == iso14443a.MaxCascadeLevel {
			return 0, s.fail(fmt.Errorf("select: %w: cascade SAK 0x%02X at level %d",
				ErrProtocolViolation, sak, level))
		}
		s.uid = append(s.uid, fragment[1:]...)
		s.fragment = nil
		s.level++
		s.state = StateRequested
		return sak, nil
	}

	s.uid = append(s.uid, fragment...)
	uid := append(UID(nil), s.uid...)
	capacity := s.config.Capacity
	if capacity == 0 {
		capacity = CapacityFromSAK(sak)
	}
	s.target = &Target{UID: uid, ATQA: s.atqa, SAK: sak, Capacity: capacity}
	s.state = StateSelected
	s.tracef("selected %s, SAK 0x%02X, %s", uid, sak, capacity)
	return sak, nil
}

// Activate runs a request and the full cascade of anticollision and select,
// and returns the selected tag. It sends WUPA when the session is halted and
// REQA otherwise.
func (s *Session) Activate(ctx context.Context) (*Target, error) {
	if s.state == StateHalted {
		return s.ActivateWakeup(ctx)
	}
	if _, err := s.RequestStandard(ctx); err != nil {
		return nil, err
	}
	return s.cascade(ctx)
}

// ActivateWakeup is Activate with WUPA, reaching halted tags as well.
func (s *Session) ActivateWakeup(ctx context.Context) (*Target, error) {
	if _, err := s.RequestWakeup(ctx); err != nil {
		return nil, err
	}
	return s.cascade(ctx)
}

func (s *Session) cascade(ctx context.Context) (*Target, error) {
	for s.state == StateRequested {
		level := s.level
		frag, err := s.Anticollide(ctx, level)
		if err != nil {
			return nil, err
		}
		if _, err := s.Select(ctx, level, frag); err != nil {
			return nil, err
		}
	}
	return s.Target(), nil
}

// Halt sends HLTA, encrypted when authenticated. The tag acknowledges by
// staying silent; afterwards only WUPA reaches it.
func (s *Session) Halt(ctx context.Context) error {
	if err := s.require("halt", StateSelected, StateAuthenticated); err != nil {
		return err
	}

	cmd := []byte{iso14443a.CmdHLTA, 0x00}
	var tx iso14443a.Frame
	if s.state == StateAuthenticated {
		tx = iso14443a.EncryptCommand(s.cipher, cmd)
	} else {
		tx = iso14443a.EncodeCommand(cmd)
	}

	rx, err := s.exchange(ctx, tx)
	switch {
	case isTimeout(err):
		s.Reset()
		s.state = StateHalted
		return nil
	case err != nil:
		return s.fail(airError("halt", err))
	default:
		return s.fail(fmt.Errorf("halt: %w: tag answered %s", ErrProtocolViolation, rx))
	}
}
