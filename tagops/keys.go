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

// SectorKey is a key together with the slot it is tried as.
type SectorKey struct {
	Key  mifare.Key
	Type mifare.KeyType
}

func (k SectorKey) String() string {
	return fmt.Sprintf("key %s", k.Type)
}

// Keyring supplies the keys to try for a sector, most likely first.
type Keyring interface {
	Candidates(sector int) []SectorKey
}

// Dictionary tries the same keys on every sector, each as Key A and then
// as Key B.
type Dictionary []mifare.Key

// Candidates implements Keyring.
func (d Dictionary) Candidates(int) []SectorKey {
	out := make([]SectorKey, 0, 2*len(d))
	for _, kt := range []mifare.KeyType{mifare.KeyA, mifare.KeyB} {
		for _, k := range d {
			out = append(out, SectorKey{Key: k, Type: kt})
		}
	}
	return out
}

// DefaultDictionary is the dictionary of well known keys.
func DefaultDictionary() Dictionary {
	return Dictionary(mifare.CommonKeys())
}

// FindKey tries the keyring's candidates for sector until one
// authenticates and returns it. The session is left authenticated for the
// sector.
func (t *TagOperations) FindKey(ctx context.Context, sector int, ring Keyring) (SectorKey, error) {
	if t.target == nil {
		return SectorKey{}, ErrNoTag
	}
	if sector < 0 || sector >= t.target.Capacity.Sectors() {
		return SectorKey{}, fmt.Errorf("%w: sector %d on %s", mifare.ErrInvalidParameter, sector, t.target.Capacity)
	}

	for _, cand := range ring.Candidates(sector) {
		err := t.authenticate(ctx, sector, cand)
		if err == nil {
			mifare.Debugf("tagops: sector %d opened with %s", sector, cand)
			return cand, nil
		}
		if !errors.Is(err, mifare.ErrAuthenticationFailed) || t.session.State() != mifare.StateSelected {
			return SectorKey{}, fmt.Errorf("sector %d: %w", sector, err)
		}
	}
	return SectorKey{}, fmt.Errorf("sector %d: %w", sector, ErrKeyNotFound)
}
