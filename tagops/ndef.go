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

package tagops

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/hsanjuan/go-ndef"

	mifare "github.com/ZaparooProject/go-mfclassic"
)

// AID is a MIFARE application identifier as stored in the MAD, first byte
// high.
type AID uint16

// Well known application identifiers
const (
	AIDFree AID = 0x0000
	AIDNDEF AID = 0x03E1
)

const (
	madSector  = 0
	mad2Sector = 16

	gpbMADAvailable = 0x80
	gpbMADVersion   = 0x03

	madCRCInit = 0xC7
	madCRCPoly = 0x1D
)

// TLV tags of the NFC Forum Mifare Classic mapping
const (
	tlvNull       = 0x00
	tlvNDEF       = 0x03
	tlvTerminator = 0xFE
)

// MAD is a decoded MIFARE Application Directory. AIDs is indexed by
// sector; entries for sector 0, sector 16 and sectors the directory does
// not cover are AIDFree.
type MAD struct {
	AIDs    []AID
	Version int
}

// Sectors returns the sectors assigned to aid in ascending order.
func (m *MAD) Sectors(aid AID) []int {
	var out []int
	for sector, a := range m.AIDs {
		if a == aid && sector != madSector && sector != mad2Sector {
			out = append(out, sector)
		}
	}
	return out
}

// madCRC is the CRC-8 (polynomial 0x1D, preset 0xC7) protecting a
// directory, computed over everything after the CRC byte.
func madCRC(data []byte) byte {
	crc := byte(madCRCInit)
	for _, b := range data {
		crc ^= b
		for range 8 {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ madCRCPoly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// decodeMAD checks the CRC of one directory and appends its AIDs.
func decodeMAD(raw []byte, aids []AID) ([]AID, error) {
	if madCRC(raw[1:]) != raw[0] {
		return nil, fmt.Errorf("%w: CRC 0x%02X, computed 0x%02X", ErrInvalidMAD, raw[0], madCRC(raw[1:]))
	}
	for i := 2; i+1 < len(raw); i += 2 {
		aids = append(aids, AID(binary.BigEndian.Uint16(raw[i:])))
	}
	return aids, nil
}

// ReadMAD reads the application directory with the public MAD key.
func (t *TagOperations) ReadMAD(ctx context.Context) (*MAD, error) {
	if t.target == nil {
		return nil, ErrNoTag
	}
	madKey := SectorKey{Key: mifare.MADKey, Type: mifare.KeyA}
	blocks, err := t.ReadSector(ctx, madSector, madKey)
	if errors.Is(err, mifare.ErrAuthenticationFailed) {
		// Not under the MAD key, so not NFC Forum formatted.
		return nil, fmt.Errorf("%w: %w", ErrInvalidMAD, err)
	}
	if err != nil {
		return nil, fmt.Errorf("MAD: %w", err)
	}
	gpb := blocks[3][9]
	if gpb&gpbMADAvailable == 0 {
		return nil, fmt.Errorf("%w: GPB 0x%02X has no MAD flag", ErrInvalidMAD, gpb)
	}

	mad := &MAD{Version: int(gpb & gpbMADVersion), AIDs: []AID{AIDFree}}
	raw := slices.Concat(blocks[1][:], blocks[2][:])
	if mad.AIDs, err = decodeMAD(raw, mad.AIDs); err != nil {
		return nil, err
	}

	if mad.Version == 2 && t.target.Capacity.Sectors() > mad2Sector {
		blocks, err := t.ReadSector(ctx, mad2Sector, madKey)
		if errors.Is(err, mifare.ErrAuthenticationFailed) {
			return nil, fmt.Errorf("%w: MAD2: %w", ErrInvalidMAD, err)
		}
		if err != nil {
			return nil, fmt.Errorf("MAD2: %w", err)
		}
		mad.AIDs = append(mad.AIDs, AIDFree)
		raw := slices.Concat(blocks[0][:], blocks[1][:], blocks[2][:])
		if mad.AIDs, err = decodeMAD(raw, mad.AIDs); err != nil {
			return nil, fmt.Errorf("MAD2: %w", err)
		}
	}
	if n := t.target.Capacity.Sectors(); len(mad.AIDs) > n {
		mad.AIDs = mad.AIDs[:n]
	}
	return mad, nil
}

// ReadNDEF reads the NDEF message from the sectors the MAD assigns to
// NDEF, authenticating each with the public NDEF key.
func (t *TagOperations) ReadNDEF(ctx context.Context) (*ndef.Message, error) {
	mad, err := t.ReadMAD(ctx)
	if err != nil {
		return nil, err
	}
	sectors := mad.Sectors(AIDNDEF)
	if len(sectors) == 0 {
		return nil, ErrNoNDEF
	}

	key := SectorKey{Key: mifare.NDEFKey, Type: mifare.KeyA}
	var data []byte
	for _, sector := range sectors {
		blocks, err := t.ReadSector(ctx, sector, key)
		if err != nil {
			return nil, fmt.Errorf("NDEF: %w", err)
		}
		for _, b := range blocks[:len(blocks)-1] {
			data = append(data, b[:]...)
		}
		payload, complete, err := findNDEFTLV(data)
		if err != nil {
			return nil, err
		}
		if complete {
			return parseMessage(payload)
		}
		if !slices.ContainsFunc(data, func(b byte) bool { return b != tlvNull }) {
			return nil, ErrNoNDEF
		}
	}
	return nil, fmt.Errorf("%w: message runs past the last NDEF sector", ErrInvalidTLV)
}

func parseMessage(payload []byte) (*ndef.Message, error) {
	if len(payload) == 0 {
		return nil, ErrNoNDEF
	}
	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(payload); err != nil {
		return nil, fmt.Errorf("NDEF: %w", err)
	}
	return msg, nil
}

// findNDEFTLV walks the TLV area and returns the value of the first NDEF
// TLV. complete is false while more data is needed.
func findNDEFTLV(data []byte) (payload []byte, complete bool, err error) {
	for i := 0; i < len(data); {
		switch tag := data[i]; tag {
		case tlvNull:
			i++
			continue
		case tlvTerminator:
			return nil, false, ErrNoNDEF
		default:
			length, hdr, ok := tlvLength(data[i+1:])
			if !ok {
				return nil, false, nil
			}
			start := i + 1 + hdr
			if start+length > len(data) {
				return nil, false, nil
			}
			if tag == tlvNDEF {
				return data[start : start+length], true, nil
			}
			i = start + length
		}
	}
	return nil, false, nil
}

// tlvLength decodes a one or three byte TLV length.
func tlvLength(b []byte) (length, size int, ok bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	if b[0] != 0xFF {
		return int(b[0]), 1, true
	}
	if len(b) < 3 {
		return 0, 0, false
	}
	return int(binary.BigEndian.Uint16(b[1:3])), 3, true
}

// EncodeNDEFTLV wraps an NDEF message in an NDEF TLV followed by a
// terminator.
func EncodeNDEFTLV(msg []byte) ([]byte, error) {
	if len(msg) > 0xFFFE {
		return nil, fmt.Errorf("%w: %d bytes", ErrNDEFTooLarge, len(msg))
	}
	out := []byte{tlvNDEF}
	if len(msg) < 0xFF {
		out = append(out, byte(len(msg)))
	} else {
		out = append(out, 0xFF, byte(len(msg)>>8), byte(len(msg)))
	}
	out = append(out, msg...)
	return append(out, tlvTerminator), nil
}

// WriteNDEF writes msg to the NDEF sectors of a formatted tag with the
// public NDEF key. The directory is not changed.
func (t *TagOperations) WriteNDEF(ctx context.Context, msg *ndef.Message) error {
	raw, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("NDEF: %w", err)
	}
	tlv, err := EncodeNDEFTLV(raw)
	if err != nil {
		return err
	}

	mad, err := t.ReadMAD(ctx)
	if err != nil {
		return err
	}
	sectors := mad.Sectors(AIDNDEF)
	space := 0
	for _, sector := range sectors {
		space += (mifare.BlocksInSector(sector) - 1) * mifare.BlockSize
	}
	if len(tlv) > space {
		return fmt.Errorf("%w: %d bytes, %d available", ErrNDEFTooLarge, len(tlv), space)
	}

	key := SectorKey{Key: mifare.NDEFKey, Type: mifare.KeyA}
	for _, sector := range sectors {
		if len(tlv) == 0 {
			break
		}
		if err := t.authenticate(ctx, sector, key); err != nil {
			return fmt.Errorf("NDEF sector %d: %w", sector, err)
		}
		first := mifare.FirstBlock(sector)
		for i := 0; i < mifare.BlocksInSector(sector)-1 && len(tlv) > 0; i++ {
			var b mifare.Block
			n := copy(b[:], tlv)
			if err := t.session.WriteBlock(ctx, uint8(first+i), b); err != nil {
				return fmt.Errorf("NDEF: %w", err)
			}
			tlv = tlv[n:]
		}
	}
	return nil
}
