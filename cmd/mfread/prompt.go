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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	mifare "github.com/ZaparooProject/go-mfclassic"
)

// promptKey reads a key from the terminal without echo. Piped input is
// read as one line.
func promptKey(in *os.File, out io.Writer) (mifare.Key, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		_, _ = fmt.Fprint(out, "Key (12 hex digits): ")
		line, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(out)
		if err != nil {
			return mifare.Key{}, fmt.Errorf("read key: %w", err)
		}
		return mifare.ParseKey(string(line))
	}
	return readKeyLine(in)
}

func readKeyLine(r io.Reader) (mifare.Key, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return mifare.Key{}, fmt.Errorf("read key: %w", err)
	}
	return mifare.ParseKey(strings.TrimSpace(line))
}
