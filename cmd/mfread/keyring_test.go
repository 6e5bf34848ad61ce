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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mifare "github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/tagops"
)

func TestParseKeyring(t *testing.T) {
	t.Parallel()

	k, err := parseKeyring([]byte(`
default_keys: [FFFFFFFFFFFF]
sectors:
  2: {key_a: D3F7D3F7D3F7, key_b: "11 22 33 44 55 66"}
  7: {key_b: A0A1A2A3A4A5}
`))
	require.NoError(t, err)

	assert.Equal(t, []tagops.SectorKey{
		{Key: mifare.NDEFKey, Type: mifare.KeyA},
		{Key: mifare.Key{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}, Type: mifare.KeyB},
		{Key: mifare.DefaultKey, Type: mifare.KeyA},
		{Key: mifare.DefaultKey, Type: mifare.KeyB},
	}, k.Candidates(2))
	assert.Equal(t, []tagops.SectorKey{
		{Key: mifare.DefaultKey, Type: mifare.KeyA},
		{Key: mifare.DefaultKey, Type: mifare.KeyB},
	}, k.Candidates(3))
	assert.Equal(t, mifare.KeyB, k.Candidates(7)[0].Type)
}

func TestParseKeyringErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{name: "bad default key", content: "default_keys: [FFFF]", wantMsg: "keyring.default_keys[0]"},
		{name: "bad sector key", content: "sectors:\n  1: {key_a: XYZ}", wantMsg: "keyring.sectors.1 key A"},
		{name: "sector out of range", content: "sectors:\n  40: {key_a: FFFFFFFFFFFF}", wantMsg: "sector 40 must be 0..39"},
		{name: "unknown field", content: "keys: []", wantMsg: "parse keyring yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseKeyring([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadKeyring(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "keys.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sectors:\n  0: {key_a: A0A1A2A3A4A5}\n"), 0o600))

	k, err := loadKeyring(path)
	require.NoError(t, err)
	assert.Equal(t, tagops.SectorKey{Key: mifare.MADKey, Type: mifare.KeyA}, k.Candidates(0)[0])

	_, err = loadKeyring(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestKeyringPrefer(t *testing.T) {
	t.Parallel()
	k := defaultKeyring()
	custom := tagops.SectorKey{Key: mifare.Key{1, 2, 3, 4, 5, 6}, Type: mifare.KeyB}
	k.prefer(custom)

	got := k.Candidates(10)
	assert.Equal(t, custom, got[0])
	assert.Len(t, got, 1+len(tagops.DefaultDictionary().Candidates(10)))
}
