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

// Package testing provides a simulated MIFARE Classic card that speaks the
// air protocol bit for bit, plus helpers for driving it in tests.
package testing

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/ZaparooProject/go-mfclassic/crypto1"
	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

type cardState int

const (
	cardIdle cardState = iota
	cardReady
	cardActive
	cardAuthWait
	cardAuthenticated
	cardWriteData
	cardHalt
)

var defaultTrailer = []byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // Key A
	0xFF, 0x07, 0x80, 0x69, // Access bits
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // Key B
}

// VirtualTag is a simulated MIFARE Classic card. It implements the tag side
// of anticollision, SELECT, three pass authentication and encrypted
// READ/WRITE, and can be used directly as a transceiver.
type VirtualTag struct {
	cipher *crypto1.Cipher
	// NextNonce returns the tag nonce for each authentication. The default
	// walks the tag PRNG from a fixed seed.
	NextNonce func() uint32
	Type      string
	UID       []byte
	Memory    [][]byte // Block-based memory layout
	frames    []iso14443a.Frame
	nt        uint32
	mu        sync.Mutex
	level     int
	authBlock int
	pending   int
	state     cardState
	ATQA      [2]byte
	SAK       byte
	authKeyB  bool
	Present   bool // Whether the tag is currently present
}

// NewVirtualMIFARE1K creates a virtual MIFARE Classic 1K tag
func NewVirtualMIFARE1K(uid []byte) *VirtualTag {
	if uid == nil {
		uid = TestMIFARE1KUID
	}
	atqa := [2]byte{0x04, 0x00}
	if len(uid) > 4 {
		atqa[0] = 0x44
	}
	return newVirtualTag("MIFARE1K", uid, 64, atqa, 0x08)
}

// NewVirtualMIFARE4K creates a virtual MIFARE Classic 4K tag
func NewVirtualMIFARE4K(uid []byte) *VirtualTag {
	if uid == nil {
		uid = TestMIFARE4KUID
	}
	atqa := [2]byte{0x02, 0x00}
	if len(uid) > 4 {
		atqa[0] = 0x42
	}
	return newVirtualTag("MIFARE4K", uid, 256, atqa, 0x18)
}

// NewVirtualMIFAREMini creates a virtual MIFARE Mini tag
func NewVirtualMIFAREMini(uid []byte) *VirtualTag {
	if uid == nil {
		uid = TestMIFARE1KUID
	}
	return newVirtualTag("MINI", uid, 20, [2]byte{0x04, 0x00}, 0x09)
}

func newVirtualTag(typ string, uid []byte, blocks int, atqa [2]byte, sak byte) *VirtualTag {
	tag := &VirtualTag{
		Type:    typ,
		UID:     append([]byte(nil), uid...),
		Memory:  make([][]byte, blocks),
		ATQA:    atqa,
		SAK:     sak,
		Present: true,
		pending: -1,
		nt:      0x01200145,
	}
	tag.NextNonce = func() uint32 {
		tag.nt = crypto1.Successor(tag.nt, 160)
		return tag.nt
	}
	tag.initMemory()
	return tag
}

func (v *VirtualTag) initMemory() {
	for i := range v.Memory {
		v.Memory[i] = make([]byte, 16)
	}
	// Block 0: UID, BCC for single size UIDs, SAK and ATQA
	copy(v.Memory[0], v.UID)
	if len(v.UID) == 4 {
		v.Memory[0][4] = iso14443a.BCC(v.UID)
		v.Memory[0][5] = v.SAK
		v.Memory[0][6], v.Memory[0][7] = v.ATQA[0], v.ATQA[1]
	}
	for block := range v.Memory {
		if trailerOf(block) == block {
			copy(v.Memory[block], defaultTrailer)
		}
	}
}

// GetUIDString returns the UID as a hex string
func (v *VirtualTag) GetUIDString() string {
	return hex.EncodeToString(v.UID)
}

// SetKeys stores keys in the trailer of sector
func (v *VirtualTag) SetKeys(sector int, keyA, keyB [6]byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	t := trailerOf(firstBlockOf(sector))
	copy(v.Memory[t][0:6], keyA[:])
	copy(v.Memory[t][10:16], keyB[:])
}

// SetBlock stores data directly, bypassing the air protocol
func (v *VirtualTag) SetBlock(block int, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	copy(v.Memory[block], data)
}

// Block returns a copy of a block, bypassing the air protocol
func (v *VirtualTag) Block(block int) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.Memory[block]...)
}

// Frames returns every frame the tag has received
func (v *VirtualTag) Frames() []iso14443a.Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]iso14443a.Frame(nil), v.frames...)
}

// Halted reports whether the tag is in the HALT state
func (v *VirtualTag) Halted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state == cardHalt
}

// Remove takes the tag out of the field
func (v *VirtualTag) Remove() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Present = false
	v.state = cardIdle
	v.cipher = nil
}

// Insert puts the tag back into the field, powered up in IDLE
func (v *VirtualTag) Insert() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Present = true
	v.state = cardIdle
}

// TransceiveBits lets a single tag act as the whole field.
func (v *VirtualTag) TransceiveBits(ctx context.Context, tx iso14443a.Frame) (iso14443a.Frame, error) {
	if err := ctx.Err(); err != nil {
		return iso14443a.Frame{}, err
	}
	rx, ok := v.Handle(tx)
	if !ok {
		return iso14443a.Frame{}, iso14443a.ErrNoResponse
	}
	return rx, nil
}

// Handle processes one frame and returns the tag's answer. ok is false when
// the tag stays silent.
func (v *VirtualTag) Handle(tx iso14443a.Frame) (rx iso14443a.Frame, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.frames = append(v.frames, cloneFrame(tx))
	if !v.Present {
		return iso14443a.Frame{}, false
	}

	if tx.IsShort() {
		return v.handleRequest(tx.Data[0])
	}

	switch v.state {
	case cardReady:
		return v.handleReady(tx)
	case cardActive:
		return v.handleActive(tx)
	case cardAuthWait:
		return v.handleToken(tx)
	case cardAuthenticated:
		return v.handleEncrypted(tx)
	case cardWriteData:
		return v.handleWriteData(tx)
	default:
		return iso14443a.Frame{}, false
	}
}

func (v *VirtualTag) handleRequest(cmd byte) (iso14443a.Frame, bool) {
	switch {
	case cmd == iso14443a.CmdREQA && v.state == cardIdle,
		cmd == iso14443a.CmdWUPA && (v.state == cardIdle || v.state == cardHalt):
		v.state = cardReady
		v.level = 1
		v.cipher = nil
		return iso14443a.Encode(v.ATQA[:]), true
	case v.state == cardHalt:
		return iso14443a.Frame{}, false
	default:
		v.idle()
		return iso14443a.Frame{}, false
	}
}

func (v *VirtualTag) idle() {
	v.state = cardIdle
	v.cipher = nil
	v.pending = -1
}

// fragment returns the four UID bytes of the current level plus BCC.
func (v *VirtualTag) fragment() []byte {
	parts := iso14443a.CascadeUID(v.UID)
	if v.level < 1 || v.level > len(parts) {
		return nil
	}
	frag := append([]byte(nil), parts[v.level-1]...)
	return append(frag, iso14443a.BCC(frag))
}

func (v *VirtualTag) handleReady(tx iso14443a.Frame) (iso14443a.Frame, bool) {
	frag := v.fragment()
	if frag == nil || len(tx.Data) < 2 || tx.Data[0] != iso14443a.SelectCommand(v.level) {
		v.idle()
		return iso14443a.Frame{}, false
	}

	if tx.Data[1] == iso14443a.NVBSelect {
		return v.handleSelect(tx, frag)
	}

	known := tx.Bits - 16
	if known < 0 || known >= 40 || tx.Data[1] != iso14443a.NVB(known) || len(tx.Data) < 2+(known+7)/8 {
		v.idle()
		return iso14443a.Frame{}, false
	}
	// Only tags whose UID starts with the known bits take part.
	for bit := 0; bit < known; bit++ {
		sent := tx.Data[2+bit/8] >> uint(bit%8) & 1
		mine := frag[bit/8] >> uint(bit%8) & 1
		if sent != mine {
			return iso14443a.Frame{}, false
		}
	}

	start := known / 8
	rest := frag[start:]
	rx := iso14443a.Frame{
		Data:   append([]byte(nil), rest...),
		Parity: make([]byte, len(rest)),
		Bits:   len(rest) * 8,
	}
	rx.Data[0] &^= byte(1)<<uint(known%8) - 1
	for i, b := range rest {
		rx.Parity[i] = iso14443a.OddParity(b)
	}
	return rx, true
}

func (v *VirtualTag) handleSelect(tx iso14443a.Frame, frag []byte) (iso14443a.Frame, bool) {
	req, err := iso14443a.DecodeCommand(tx)
	if err != nil || len(req) != 7 {
		v.idle()
		return iso14443a.Frame{}, false
	}
	for i := 0; i < 5; i++ {
		if req[2+i] != frag[i] {
			// Addressed to another tag
			return iso14443a.Frame{}, false
		}
	}
	if frag[0] == iso14443a.CascadeTag && v.level < len(iso14443a.CascadeUID(v.UID)) {
		v.level++
		return iso14443a.EncodeCommand([]byte{iso14443a.SAKCascadeBit}), true
	}
	v.state = cardActive
	return iso14443a.EncodeCommand([]byte{v.SAK}), true
}

func (v *VirtualTag) handleActive(tx iso14443a.Frame) (iso14443a.Frame, bool) {
	req, err := iso14443a.DecodeCommand(tx)
	if err != nil || len(req) != 2 {
		v.idle()
		return iso14443a.Frame{}, false
	}
	switch req[0] {
	case iso14443a.CmdHLTA:
		v.state = cardHalt
		return iso14443a.Frame{}, false
	case iso14443a.CmdAuthKeyA, iso14443a.CmdAuthKeyB:
		if !v.startAuth(req) {
			return iso14443a.Frame{}, false
		}
		var nt [4]byte
		binary.BigEndian.PutUint32(nt[:], v.nt)
		uid := v.nuid()
		for i := range nt {
			v.cipher.Byte(uid[i]^nt[i], crypto1.FeedPlain)
		}
		return iso14443a.Encode(nt[:]), true
	default:
		v.idle()
		return iso14443a.Frame{}, false
	}
}

// startAuth loads the addressed key and clocks in UID^Nt.
func (v *VirtualTag) startAuth(req []byte) bool {
	block := int(req[1])
	if block >= len(v.Memory) {
		v.idle()
		return false
	}
	v.authBlock = block
	v.authKeyB = req[0] == iso14443a.CmdAuthKeyB

	var key [6]byte
	trailer := v.Memory[trailerOf(block)]
	if v.authKeyB {
		copy(key[:], trailer[10:16])
	} else {
		copy(key[:], trailer[0:6])
	}
	v.nt = v.NextNonce()
	v.cipher = crypto1.NewCipher(key)
	v.state = cardAuthWait
	return true
}

func (v *VirtualTag) nuid() [4]byte {
	var n [4]byte
	copy(n[:], v.UID[len(v.UID)-4:])
	return n
}

func (v *VirtualTag) handleToken(tx iso14443a.Frame) (iso14443a.Frame, bool) {
	if tx.Bits != 64 || len(tx.Data) < 8 || len(tx.Parity) < 8 {
		v.idle()
		return iso14443a.Frame{}, false
	}
	var plain [8]byte
	for i := 0; i < 8; i++ {
		if i < 4 {
			plain[i] = v.cipher.UnloadByte(tx.Data[i])
		} else {
			plain[i] = v.cipher.DecryptByte(tx.Data[i])
		}
		if tx.Parity[i]&1 != iso14443a.OddParity(plain[i])^v.cipher.Peek() {
			v.idle()
			return iso14443a.Frame{}, false
		}
	}
	if binary.BigEndian.Uint32(plain[4:]) != crypto1.ReaderAnswer(v.nt) {
		v.idle()
		return iso14443a.Frame{}, false
	}

	var at [4]byte
	binary.BigEndian.PutUint32(at[:], crypto1.TagAnswer(v.nt))
	v.state = cardAuthenticated
	return iso14443a.EncryptFrame(v.cipher, at[:]), true
}

func (v *VirtualTag) nak(code byte) (iso14443a.Frame, bool) {
	rx := iso14443a.EncryptNibble(v.cipher, code)
	v.idle()
	return rx, true
}

func (v *VirtualTag) handleEncrypted(tx iso14443a.Frame) (iso14443a.Frame, bool) {
	req, err := iso14443a.DecryptCommand(v.cipher, tx)
	if err != nil || len(req) != 2 {
		v.idle()
		return iso14443a.Frame{}, false
	}
	block := int(req[1])

	switch req[0] {
	case iso14443a.CmdRead:
		if !v.inAuthSector(block) {
			return v.nak(iso14443a.NAKInvalidAuth)
		}
		data := append([]byte(nil), v.Memory[block]...)
		if trailerOf(block) == block {
			// Key A never reads back
			copy(data[0:6], make([]byte, 6))
		}
		return iso14443a.EncryptCommand(v.cipher, data), true

	case iso14443a.CmdWrite:
		if !v.inAuthSector(block) || block == 0 {
			return v.nak(iso14443a.NAKInvalidAuth)
		}
		v.pending = block
		v.state = cardWriteData
		return iso14443a.EncryptNibble(v.cipher, iso14443a.ACK), true

	case iso14443a.CmdAuthKeyA, iso14443a.CmdAuthKeyB:
		if !v.startAuth(req) {
			return iso14443a.Frame{}, false
		}
		return v.encryptedNonce(), true

	case iso14443a.CmdHLTA:
		v.state = cardHalt
		v.cipher = nil
		return iso14443a.Frame{}, false

	default:
		return v.nak(iso14443a.NAKInvalidArg)
	}
}

// encryptedNonce sends Nt under the freshly keyed cipher, as in nested
// authentication.
func (v *VirtualTag) encryptedNonce() iso14443a.Frame {
	var nt [4]byte
	binary.BigEndian.PutUint32(nt[:], v.nt)
	uid := v.nuid()
	rx := iso14443a.Frame{Data: make([]byte, 4), Parity: make([]byte, 4), Bits: 32}
	for i := range nt {
		ks := v.cipher.Byte(uid[i]^nt[i], crypto1.FeedPlain)
		rx.Data[i] = nt[i] ^ ks
		rx.Parity[i] = iso14443a.OddParity(nt[i]) ^ v.cipher.Peek()
	}
	return rx
}

func (v *VirtualTag) handleWriteData(tx iso14443a.Frame) (iso14443a.Frame, bool) {
	data, err := iso14443a.DecryptCommand(v.cipher, tx)
	if err != nil || len(data) != 16 {
		return v.nak(iso14443a.NAKCRCError)
	}
	copy(v.Memory[v.pending], data)
	v.pending = -1
	v.state = cardAuthenticated
	return iso14443a.EncryptNibble(v.cipher, iso14443a.ACK), true
}

func (v *VirtualTag) inAuthSector(block int) bool {
	return block < len(v.Memory) && trailerOf(block) == trailerOf(v.authBlock)
}

func firstBlockOf(sector int) int {
	if sector < 32 {
		return sector * 4
	}
	return 128 + (sector-32)*16
}

func trailerOf(block int) int {
	if block < 128 {
		return block/4*4 + 3
	}
	return block/16*16 + 15
}

func cloneFrame(f iso14443a.Frame) iso14443a.Frame {
	return iso14443a.Frame{
		Data:   append([]byte(nil), f.Data...),
		Parity: append([]byte(nil), f.Parity...),
		Bits:   f.Bits,
	}
}

func (v *VirtualTag) String() string {
	return fmt.Sprintf("%s %s", v.Type, v.GetUIDString())
}
