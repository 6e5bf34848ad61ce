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
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-mfclassic/crypto1"
	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

// HandshakePhase is the step a Handshake has reached.
type HandshakePhase int

const (
	// PhaseAwaitNonce means the cipher holds the key and waits for Nt.
	PhaseAwaitNonce HandshakePhase = iota
	// PhaseNonceAccepted means UID^Nt has been clocked in.
	PhaseNonceAccepted
	// PhaseTokenSent means Nr and Ar have been produced.
	PhaseTokenSent
	// PhaseComplete means At was verified and the cipher is live.
	PhaseComplete
	// PhaseFailed means a verification step failed. The cipher is useless.
	PhaseFailed
)

func (p HandshakePhase) String() string {
	switch p {
	case PhaseAwaitNonce:
		return "await-nonce"
	case PhaseNonceAccepted:
		return "nonce-accepted"
	case PhaseTokenSent:
		return "token-sent"
	case PhaseComplete:
		return "complete"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("HandshakePhase(%d)", int(p))
	}
}

// Handshake is the reader side of the three pass authentication, one step
// per method so every intermediate cipher state can be inspected.
//
//	h := NewHandshake(key, uid.Nuid())
//	h.AcceptNonce(nt)            // tag nonce in clear
//	tx := h.ReaderToken(nr)      // {Nr}{Ar}
//	err := h.VerifyTagToken(rx)  // {At}
type Handshake struct {
	cipher *crypto1.Cipher
	uid    [4]byte
	nt     uint32
	phase  HandshakePhase
}

// NewHandshake loads key into a fresh cipher.
func NewHandshake(key Key, nuid [4]byte) *Handshake {
	return &Handshake{
		cipher: crypto1.NewCipher(key),
		uid:    nuid,
	}
}

// Phase returns the current step.
func (h *Handshake) Phase() HandshakePhase { return h.phase }

// Nonce returns the tag nonce once accepted.
func (h *Handshake) Nonce() uint32 { return h.nt }

// Cipher exposes the cipher for inspection. After PhaseComplete it is the
// session keystream.
func (h *Handshake) Cipher() *crypto1.Cipher { return h.cipher }

// AcceptNonce clocks in UID^Nt for a tag nonce received in clear.
func (h *Handshake) AcceptNonce(nt [4]byte) error {
	if h.phase != PhaseAwaitNonce {
		return fmt.Errorf("%w: nonce in phase %s", ErrInvalidState, h.phase)
	}
	for i := range nt {
		h.cipher.Byte(h.uid[i]^nt[i], crypto1.FeedPlain)
	}
	h.nt = binary.BigEndian.Uint32(nt[:])
	h.phase = PhaseNonceAccepted
	return nil
}

// AcceptEncryptedNonce decrypts a tag nonce sent under the previous session
// during nested authentication, clocking in UID^Nt as it goes.
//
// A parity mismatch is returned as a *iso14443a.FrameError wrapping
// ErrParityMismatch, but the nonce is still accepted and the handshake moves
// on: under a wrong key the parity bits decrypt to noise, and the tag keeps
// waiting for a reader token until it gets one.
func (h *Handshake) AcceptEncryptedNonce(rx iso14443a.Frame) error {
	if h.phase != PhaseAwaitNonce {
		return fmt.Errorf("%w: nonce in phase %s", ErrInvalidState, h.phase)
	}
	if rx.Bits != 32 || len(rx.Data) < 4 || len(rx.Parity) < 4 {
		h.phase = PhaseFailed
		return fmt.Errorf("%w: encrypted nonce of %d bits", ErrProtocolViolation, rx.Bits)
	}
	var nt [4]byte
	var parityErr error
	for i := range nt {
		ks := h.cipher.Byte(rx.Data[i]^h.uid[i], crypto1.FeedCiphertext)
		nt[i] = rx.Data[i] ^ ks
		if parityErr == nil && rx.Parity[i]&1 != iso14443a.OddParity(nt[i])^h.cipher.Peek() {
			parityErr = &iso14443a.FrameError{Index: i, Err: ErrParityMismatch}
		}
	}
	h.nt = binary.BigEndian.Uint32(nt[:])
	h.phase = PhaseNonceAccepted
	return parityErr
}

// ReaderToken returns the 8-byte frame {Nr}{Ar}. Nr is fed back into the
// register while it is encrypted; Ar is Nt advanced 64 steps.
func (h *Handshake) ReaderToken(nr uint32) (iso14443a.Frame, error) {
	if h.phase != PhaseNonceAccepted {
		return iso14443a.Frame{}, fmt.Errorf("%w: token in phase %s", ErrInvalidState, h.phase)
	}
	var plain [8]byte
	binary.BigEndian.PutUint32(plain[:4], nr)
	binary.BigEndian.PutUint32(plain[4:], crypto1.ReaderAnswer(h.nt))

	f := iso14443a.Frame{
		Data:   make([]byte, len(plain)),
		Parity: make([]byte, len(plain)),
		Bits:   len(plain) * 8,
	}
	for i, p := range plain {
		if i < 4 {
			f.Data[i] = h.cipher.LoadByte(p)
		} else {
			f.Data[i], _ = h.cipher.EncryptByte(p)
		}
		f.Parity[i] = iso14443a.OddParity(p) ^ h.cipher.Peek()
	}
	h.phase = PhaseTokenSent
	return f, nil
}

// VerifyTagToken decrypts {At} and checks it against Nt advanced 96 steps.
func (h *Handshake) VerifyTagToken(rx iso14443a.Frame) error {
	if h.phase != PhaseTokenSent {
		return fmt.Errorf("%w: tag token in phase %s", ErrInvalidState, h.phase)
	}
	if rx.Bits != 32 {
		h.phase = PhaseFailed
		return fmt.Errorf("%w: tag token of %d bits", ErrProtocolViolation, rx.Bits)
	}
	at, err := iso14443a.DecryptFrame(h.cipher, rx)
	if err != nil {
		h.phase = PhaseFailed
		return err
	}
	if binary.BigEndian.Uint32(at) != crypto1.TagAnswer(h.nt) {
		h.phase = PhaseFailed
		return ErrAuthenticationFailed
	}
	h.phase = PhaseComplete
	return nil
}

// Authenticate runs the three pass handshake for the sector holding block.
// From StateAuthenticated the AUTH command goes out under the current
// keystream (nested authentication) and the old cipher is discarded.
//
// A wrong key surfaces as ErrAuthenticationFailed and leaves the session
// StateSelected. Retrying with another key is the caller's decision.
func (s *Session) Authenticate(ctx context.Context, block uint8, key Key, keyType KeyType) error {
	if err := s.require("authenticate", StateSelected, StateAuthenticated); err != nil {
		return err
	}
	if !keyType.Valid() {
		return fmt.Errorf("authenticate: %w: key type 0x%02X", ErrInvalidParameter, byte(keyType))
	}
	if !s.capacity().Contains(int(block)) {
		return fmt.Errorf("authenticate: %w: block %d on %s", ErrBlockOutOfRange, block, s.capacity())
	}
	nr, err := s.config.Nonces.Nonce()
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	nested := s.state == StateAuthenticated
	auth := AuthState{Sector: SectorOf(int(block)), KeyType: keyType}
	s.tracef("authenticate %s (block %d, nested %v)", auth, block, nested)

	cmd := []byte{keyType.Command(), block}
	var tx iso14443a.Frame
	if nested {
		tx = iso14443a.EncryptCommand(s.cipher, cmd)
	} else {
		tx = iso14443a.EncodeCommand(cmd)
	}
	s.dropCipher()
	s.state = StateAuthenticating
	s.auth = auth

	h := NewHandshake(key, s.target.UID.Nuid())

	rx, err := s.exchange(ctx, tx)
	if err != nil {
		return s.fail(airError("authenticate: tag nonce", err))
	}
	// noise is set when a nested nonce failed its parity check. The token
	// still goes out so the tag leaves its handshake and idles.
	var noise error
	if nested {
		err = h.AcceptEncryptedNonce(rx)
		if errors.Is(err, ErrParityMismatch) {
			noise, err = err, nil
			s.tracef("authenticate %s: encrypted nonce: %v", auth, noise)
		}
	} else {
		err = acceptPlainNonce(h, rx)
	}
	if err != nil {
		return s.fail(fmt.Errorf("authenticate: tag nonce: %w", err))
	}

	token, err := h.ReaderToken(nr)
	if err != nil {
		return s.fail(err)
	}
	rx, err = s.exchange(ctx, token)
	switch {
	case isTimeout(err) && noise != nil:
		return s.authFailed(fmt.Errorf("authenticate %s: %w: wrong key (encrypted nonce: %v)",
			auth, ErrAuthenticationFailed, noise))
	case isTimeout(err):
		// A tag that cannot verify Ar stays silent.
		return s.authFailed(fmt.Errorf("authenticate %s: %w: no answer to reader token",
			auth, ErrAuthenticationFailed))
	case err != nil:
		return s.fail(airError("authenticate: tag token", err))
	}

	if err := h.VerifyTagToken(rx); err != nil {
		if noise != nil || errors.Is(err, ErrAuthenticationFailed) {
			return s.authFailed(fmt.Errorf("authenticate %s: %w: tag answer mismatch", auth, err))
		}
		return s.fail(fmt.Errorf("authenticate: tag token: %w", err))
	}

	s.cipher = h.Cipher()
	s.state = StateAuthenticated
	return nil
}

func acceptPlainNonce(h *Handshake, rx iso14443a.Frame) error {
	if rx.Bits != 32 {
		return fmt.Errorf("%w: nonce of %d bits", ErrProtocolViolation, rx.Bits)
	}
	data, err := iso14443a.Decode(rx)
	if err != nil {
		return err
	}
	return h.AcceptNonce([4]byte(data))
}

// authFailed discards the cipher and returns to StateSelected.
func (s *Session) authFailed(err error) error {
	s.tracef("%v", err)
	s.dropCipher()
	s.auth = AuthState{}
	s.state = StateSelected
	return err
}
