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
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	mifare "github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/tagops"
)

const maxSectors = 40

// keyringFile is the YAML layout of a keyring:
//
//	default_keys: [FFFFFFFFFFFF, A0A1A2A3A4A5]
//	sectors:
//	  1: {key_a: D3F7D3F7D3F7, key_b: "11 22 33 44 55 66"}
type keyringFile struct {
	Sectors     map[int]sectorKeys `yaml:"sectors"`
	DefaultKeys []string           `yaml:"default_keys"`
}

type sectorKeys struct {
	KeyA string `yaml:"key_a"`
	KeyB string `yaml:"key_b"`
}

// keyring tries per-sector keys first, then the default dictionary.
type keyring struct {
	sectors  map[int][]tagops.SectorKey
	defaults tagops.Dictionary
	first    []tagops.SectorKey
}

// Candidates implements tagops.Keyring.
func (k *keyring) Candidates(sector int) []tagops.SectorKey {
	out := append([]tagops.SectorKey(nil), k.first...)
	out = append(out, k.sectors[sector]...)
	return append(out, k.defaults.Candidates(sector)...)
}

// prefer puts key ahead of everything else for every sector.
func (k *keyring) prefer(key tagops.SectorKey) {
	k.first = append([]tagops.SectorKey{key}, k.first...)
}

func defaultKeyring() *keyring {
	return &keyring{sectors: map[int][]tagops.SectorKey{}, defaults: tagops.DefaultDictionary()}
}

func loadKeyring(path string) (*keyring, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyring: %w", err)
	}
	return parseKeyring(content)
}

func parseKeyring(content []byte) (*keyring, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var f keyringFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse keyring yaml: %w", err)
	}

	k := defaultKeyring()
	if len(f.DefaultKeys) > 0 {
		k.defaults = nil
		for i, s := range f.DefaultKeys {
			key, err := mifare.ParseKey(s)
			if err != nil {
				return nil, fmt.Errorf("keyring.default_keys[%d]: %w", i, err)
			}
			k.defaults = append(k.defaults, key)
		}
	}

	sectors := make([]int, 0, len(f.Sectors))
	for sector := range f.Sectors {
		sectors = append(sectors, sector)
	}
	sort.Ints(sectors)
	for _, sector := range sectors {
		if sector < 0 || sector >= maxSectors {
			return nil, fmt.Errorf("keyring.sectors: sector %d must be 0..%d", sector, maxSectors-1)
		}
		sk := f.Sectors[sector]
		for _, e := range []struct {
			hex string
			typ mifare.KeyType
		}{{sk.KeyA, mifare.KeyA}, {sk.KeyB, mifare.KeyB}} {
			if e.hex == "" {
				continue
			}
			key, err := mifare.ParseKey(e.hex)
			if err != nil {
				return nil, fmt.Errorf("keyring.sectors.%d key %s: %w", sector, e.typ, err)
			}
			k.sectors[sector] = append(k.sectors[sector], tagops.SectorKey{Key: key, Type: e.typ})
		}
	}
	return k, nil
}
