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

package main

import (
	"fmt"
	"io"
	"strings"

	mifare "github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/tagops"
)

// formatBlock renders one block as hex and printable ASCII.
func formatBlock(n int, b mifare.Block) string {
	var ascii strings.Builder
	for _, c := range b {
		if c >= 0x20 && c < 0x7F {
			ascii.WriteByte(c)
		} else {
			ascii.WriteByte('.')
		}
	}
	return fmt.Sprintf("%3d  % X  |%s|", n, b[:], ascii.String())
}

func printDump(w io.Writer, dump []tagops.SectorDump) {
	for _, d := range dump {
		if d.Err != nil {
			_, _ = fmt.Fprintf(w, "sector %2d  %v\n", d.Sector, d.Err)
			continue
		}
		_, _ = fmt.Fprintf(w, "sector %2d  %s\n", d.Sector, d.Key)
		first := mifare.FirstBlock(d.Sector)
		for i, b := range d.Blocks {
			_, _ = fmt.Fprintln(w, formatBlock(first+i, b))
		}
		if tr, err := tagops.ParseTrailer(d.Blocks[len(d.Blocks)-1]); err == nil {
			_, _ = fmt.Fprintf(w, "           access %v %v %v trailer %v\n",
				tr.Access[0], tr.Access[1], tr.Access[2], tr.Access[3])
		} else {
			_, _ = fmt.Fprintf(w, "           %v\n", err)
		}
	}
}
