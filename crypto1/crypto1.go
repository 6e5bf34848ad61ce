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

// Package crypto1 implements the CRYPTO1 stream cipher used by MIFARE Classic
// tags for mutual authentication and for encrypting all traffic after it.
//
// The 48-bit LFSR is held as two 24-bit halves: odd holds the register bits
// at odd positions and even the bits at even positions. The nonlinear filter
// only reads odd positions, which lets each clock compute the output from one
// half and shift the new feedback bit into the other before swapping them.
//
// Bit order: keys, nonces and data bytes are clocked in least significant bit
// first within each byte, bytes in transmission order. A 6-byte key is first
// read as a big-endian 48-bit value (see KeyFromBytes).
package crypto1

import "math/bits"

// Feedback selects what enters the register together with the linear taps.
type Feedback bool

const (
	// FeedPlain shifts the input bit in as given. With input 0 the cipher
	// produces pure keystream; with plaintext input it loads the plaintext
	// (used for UID^Nt and the reader nonce).
	FeedPlain Feedback = false
	// FeedCiphertext treats the input as ciphertext: the plaintext bit
	// (input XOR keystream) is shifted in. Used on the receiving side of a
	// stream that was encrypted with FeedPlain loading.
	FeedCiphertext Feedback = true
)

const (
	lfPolyOdd  uint32 = 0x29CE5C
	lfPolyEven uint32 = 0x870804

	filterTable uint32 = 0xEC57E80A
	keyBits            = 48
	keyMask     uint64 = 1<<keyBits - 1
)

// Cipher is one CRYPTO1 engine. It is not safe for concurrent use and a
// session must own its Cipher exclusively.
type Cipher struct {
	odd    uint32
	even   uint32
	clocks uint64
}

// New returns a cipher whose register is loaded with key.
func New(key uint64) *Cipher {
	c := &Cipher{}
	c.Reset(key)
	return c
}

// NewCipher returns a cipher loaded with a 6-byte key.
func NewCipher(key [6]byte) *Cipher {
	return New(KeyFromBytes(key))
}

// KeyFromBytes converts a 6-byte key to the 48-bit value the register is
// loaded from. The first key byte is the most significant.
func KeyFromBytes(key [6]byte) uint64 {
	var k uint64
	for _, b := range key {
		k = k<<8 | uint64(b)
	}
	return k
}

// Reset reloads the register with key and clears the clock counter.
func (c *Cipher) Reset(key uint64) {
	c.odd, c.even, c.clocks = 0, 0, 0
	for i := 47; i > 0; i -= 2 {
		c.odd = c.odd<<1 | uint32(key>>uint((i-1)^7)&1)
		c.even = c.even<<1 | uint32(key>>uint(i^7)&1)
	}
}

// Bit clocks the register once and returns the keystream bit that was valid
// before the shift.
func (c *Cipher) Bit(in byte, mode Feedback) byte {
	out := filter(c.odd)

	feed := uint32(in & 1)
	if mode == FeedCiphertext {
		feed ^= uint32(out)
	}
	feed ^= lfPolyOdd & c.odd
	feed ^= lfPolyEven & c.even

	c.even = c.even<<1 | parity(feed)
	c.odd, c.even = c.even, c.odd
	c.clocks++

	return out
}

// Byte clocks eight times, feeding in from its least significant bit, and
// returns the eight keystream bits in the same order.
func (c *Cipher) Byte(in byte, mode Feedback) byte {
	var ks byte
	for i := 0; i < 8; i++ {
		ks |= c.Bit(in>>uint(i)&1, mode) << uint(i)
	}
	return ks
}

// Word clocks 32 times. The word is consumed as four big-endian bytes, each
// least significant bit first, which is the order nonces travel on the air.
func (c *Cipher) Word(in uint32, mode Feedback) uint32 {
	var ks uint32
	for i := 0; i < 32; i++ {
		pos := uint(i ^ 24)
		ks |= uint32(c.Bit(byte(in>>pos&1), mode)) << pos
	}
	return ks
}

// Peek returns the keystream bit the next clock will produce without
// advancing the register. MIFARE encrypts each parity bit with it.
func (c *Cipher) Peek() byte {
	return filter(c.odd)
}

// EncryptByte encrypts one byte of the data stream and returns the
// ciphertext and the keystream byte used.
func (c *Cipher) EncryptByte(p byte) (ct, ks byte) {
	ks = c.Byte(0, FeedPlain)
	return p ^ ks, ks
}

// DecryptByte decrypts one byte of the data stream.
func (c *Cipher) DecryptByte(ct byte) byte {
	return ct ^ c.Byte(0, FeedPlain)
}

// LoadByte encrypts p while feeding p itself into the register. This is how
// the reader nonce is sent.
func (c *Cipher) LoadByte(p byte) (ct byte) {
	return p ^ c.Byte(p, FeedPlain)
}

// UnloadByte is the receiving side of LoadByte: it recovers the plaintext
// from ct and feeds that plaintext into the register.
func (c *Cipher) UnloadByte(ct byte) (p byte) {
	return ct ^ c.Byte(ct, FeedCiphertext)
}

// LFSR returns the 48-bit register contents in key order. A freshly reset
// cipher returns its key.
func (c *Cipher) LFSR() uint64 {
	var lfsr uint64
	for i := 23; i >= 0; i-- {
		lfsr = lfsr<<1 | uint64(c.odd>>uint(i^3)&1)
		lfsr = lfsr<<1 | uint64(c.even>>uint(i^3)&1)
	}
	return lfsr & keyMask
}

// Clocks returns the number of clocks since the last Reset.
func (c *Cipher) Clocks() uint64 {
	return c.clocks
}

// Clone returns an independent copy of the cipher state.
func (c *Cipher) Clone() *Cipher {
	cp := *c
	return &cp
}

func filter(x uint32) byte {
	var f uint32
	f = 0xf22c0 >> (x & 0xf) & 16
	f |= 0x6c9c0 >> (x >> 4 & 0xf) & 8
	f |= 0x3c8b0 >> (x >> 8 & 0xf) & 4
	f |= 0x1e458 >> (x >> 12 & 0xf) & 2
	f |= 0x0d938 >> (x >> 16 & 0xf) & 1
	return byte(filterTable >> f & 1)
}

func parity(x uint32) uint32 {
	return uint32(bits.OnesCount32(x) & 1)
}
