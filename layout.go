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

import "fmt"

// BlockSize is the size of one MIFARE Classic block in bytes.
const BlockSize = 16

// Block is one 16-byte block.
type Block [BlockSize]byte

const (
	smallSectorBlocks = 4
	largeSectorBlocks = 16
	smallSectors4K    = 32
)

// Capacity is the memory layout of a tag.
type Capacity int

const (
	// CapacityMini is the 320 byte MIFARE Mini: 5 sectors of 4 blocks.
	CapacityMini Capacity = iota + 1
	// Capacity1K has 16 sectors of 4 blocks.
	Capacity1K
	// Capacity4K has 32 sectors of 4 blocks followed by 8 of 16.
	Capacity4K
)

func (c Capacity) String() string {
	switch c {
	case CapacityMini:
		return "MIFARE Mini"
	case Capacity1K:
		return "MIFARE Classic 1K"
	case Capacity4K:
		return "MIFARE Classic 4K"
	default:
		return fmt.Sprintf("Capacity(%d)", int(c))
	}
}

// Sectors returns the number of sectors.
func (c Capacity) Sectors() int {
	switch c {
	case CapacityMini:
		return 5
	case Capacity4K:
		return 40
	default:
		return 16
	}
}

// Blocks returns the number of blocks.
func (c Capacity) Blocks() int {
	switch c {
	case CapacityMini:
		return 20
	case Capacity4K:
		return 256
	default:
		return 64
	}
}

// Contains reports whether block exists on a tag of this capacity.
func (c Capacity) Contains(block int) bool {
	return block >= 0 && block < c.Blocks()
}

// CapacityFromSAK guesses the layout from the SAK byte. Unknown values are
// treated as 1K.
func CapacityFromSAK(sak byte) Capacity {
	switch sak {
	case 0x09:
		return CapacityMini
	case 0x18, 0x38:
		return Capacity4K
	default:
		return Capacity1K
	}
}

// SectorOf returns the sector holding block.
func SectorOf(block int) int {
	if block < smallSectors4K*smallSectorBlocks {
		return block / smallSectorBlocks
	}
	return smallSectors4K + (block-smallSectors4K*smallSectorBlocks)/largeSectorBlocks
}

// BlocksInSector returns 4 for the small sectors and 16 for sectors 32..39.
func BlocksInSector(sector int) int {
	if sector < smallSectors4K {
		return smallSectorBlocks
	}
	return largeSectorBlocks
}

// FirstBlock returns the first block of sector.
func FirstBlock(sector int) int {
	if sector < smallSectors4K {
		return sector * smallSectorBlocks
	}
	return smallSectors4K*smallSectorBlocks + (sector-smallSectors4K)*largeSectorBlocks
}

// TrailerBlock returns the sector trailer of sector.
func TrailerBlock(sector int) int {
	return FirstBlock(sector) + BlocksInSector(sector) - 1
}

// IsTrailer reports whether block is a sector trailer.
func IsTrailer(block int) bool {
	return TrailerBlock(SectorOf(block)) == block
}
