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

package tagops_test

import (
	"context"
	"fmt"

	mifare "github.com/ZaparooProject/go-mfclassic"
	testutil "github.com/ZaparooProject/go-mfclassic/internal/testing"
	"github.com/ZaparooProject/go-mfclassic/tagops"
)

func Example_dump() {
	tag := testutil.NewVirtualMIFAREMini(testutil.TestMIFARE1KUID)
	tag.SetBlock(4, []byte("hello, sector 1!"))
	tag.SetKeys(3, [6]byte{1, 2, 3, 4, 5, 6}, [6]byte{1, 2, 3, 4, 5, 6})

	session, err := mifare.New(tag)
	if err != nil {
		panic(err)
	}
	ops := tagops.New(session)
	ctx := context.Background()

	if _, err := ops.DetectTag(ctx); err != nil {
		panic(err)
	}
	info, _ := ops.GetTagInfo()
	fmt.Println(info.TypeName, info.UID)

	dump, err := ops.Dump(ctx, tagops.DefaultDictionary())
	if err != nil {
		panic(err)
	}
	for _, d := range dump {
		if d.Err != nil {
			fmt.Printf("sector %d: no key\n", d.Sector)
			continue
		}
		fmt.Printf("sector %d: %s %q\n", d.Sector, d.Key, d.Blocks[0][:4])
	}

	// Output:
	// MIFARE Mini 12345678
	// sector 0: key A "\x124Vx"
	// sector 1: key A "hell"
	// sector 2: key A "\x00\x00\x00\x00"
	// sector 3: no key
	// sector 4: key A "\x00\x00\x00\x00"
}
