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
	"errors"
	"fmt"

	mifare "github.com/ZaparooProject/go-mfclassic"
)

// ReadSector authenticates with key and reads every block of sector, the
// trailer included.
func (t *TagOperations) ReadSector(ctx context.Context, sector int, key SectorKey) ([]mifare.Block, error) {
	if err := t.authenticate(ctx, sector, key); err != nil {
		return nil, fmt.Errorf("read sector %d: %w", sector, err)
	}
	first := mifare.FirstBlock(sector)
	blocks := make([]mifare.Block, mifare.BlocksInSector(sector))
	for i := range blocks {
		b, err := t.session.ReadBlock(ctx, uint8(first+i))
		if err != nil {
			return nil, fmt.Errorf("read sector %d: %w", sector, err)
		}
		blocks[i] = b
	}
	return blocks, nil
}

// WriteData writes data to consecutive data blocks starting at block,
// skipping sector trailers and block 0. The last block is zero padded.
// Each sector is authenticated with the key ring supplies for it.
func (t *TagOperations) WriteData(ctx context.Context, block int, data []byte, ring Keyring) error {
	for len(data) > 0 {
		if t.target == nil || !t.target.Capacity.Contains(block) {
			return fmt.Errorf("%w: data runs past block %d", mifare.ErrBlockOutOfRange, block)
		}
		if block == 0 || mifare.IsTrailer(block) {
			block++
			continue
		}
		sector := mifare.SectorOf(block)
		if auth, ok := t.session.Auth(); !ok || auth.Sector != sector {
			if _, err := t.FindKey(ctx, sector, ring); err != nil {
				return err
			}
		}

		var b mifare.Block
		n := copy(b[:], data)
		if err := t.session.WriteBlock(ctx, uint8(block), b); err != nil {
			return fmt.Errorf("write block %d: %w", block, err)
		}
		data = data[n:]
		block++
	}
	return nil
}

// SectorDump is the outcome of reading one sector.
type SectorDump struct {
	Err    error
	Key    *SectorKey
	Blocks []mifare.Block
	Sector int
}

// Dump reads every sector it finds a key for. Sectors without a working
// key are reported with ErrKeyNotFound and do not stop the dump; any other
// failure does.
func (t *TagOperations) Dump(ctx context.Context, ring Keyring) ([]SectorDump, error) {
	if t.target == nil {
		return nil, ErrNoTag
	}
	sectors := t.target.Capacity.Sectors()
	out := make([]SectorDump, 0, sectors)
	for sector := 0; sector < sectors; sector++ {
		d := SectorDump{Sector: sector}
		key, err := t.FindKey(ctx, sector, ring)
		switch {
		case errors.Is(err, ErrKeyNotFound):
			d.Err = err
			out = append(out, d)
			continue
		case err != nil:
			return out, err
		}
		d.Key = &key
		d.Blocks, err = t.ReadSector(ctx, sector, key)
		if err != nil {
			return out, err
		}
		out = append(out, d)
	}
	return out, nil
}
