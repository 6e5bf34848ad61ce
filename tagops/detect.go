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
	"bytes"
	"fmt"

	mifare "github.com/ZaparooProject/go-mfclassic"
)

// TagInfo contains detailed information about a detected tag
type TagInfo struct {
	TypeName    string
	UID         mifare.UID
	ATQA        [2]byte
	SAK         byte
	Sectors     int
	Blocks      int
	TotalMemory int
	UserMemory  int
}

func (i *TagInfo) String() string {
	return fmt.Sprintf("%s UID %s ATQA %02X%02X SAK %02X, %d sectors, %d bytes",
		i.TypeName, i.UID, i.ATQA[0], i.ATQA[1], i.SAK, i.Sectors, i.TotalMemory)
}

// GetTagInfo returns detailed information about the detected tag
func (t *TagOperations) GetTagInfo() (*TagInfo, error) {
	if t.target == nil {
		return nil, ErrNoTag
	}
	c := t.target.Capacity
	info := &TagInfo{
		TypeName:    c.String(),
		UID:         append(mifare.UID(nil), t.target.UID...),
		ATQA:        t.target.ATQA,
		SAK:         t.target.SAK,
		Sectors:     c.Sectors(),
		Blocks:      c.Blocks(),
		TotalMemory: c.Blocks() * mifare.BlockSize,
	}
	// Block 0 and the trailers are not user data.
	info.UserMemory = (info.Blocks - info.Sectors - 1) * mifare.BlockSize
	return info, nil
}

// CompareUID compares two UIDs for equality
func CompareUID(uid1, uid2 []byte) bool {
	return bytes.Equal(uid1, uid2)
}
