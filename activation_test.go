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

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/ZaparooProject/go-mfclassic/internal/testing"
	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

func TestActivateCascade(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		tag      *testutil.VirtualTag
		uid      UID
		capacity Capacity
		levels   int
	}{
		{
			name:     "single size 1K",
			tag:      testutil.NewVirtualMIFARE1K([]byte{0x12, 0x34, 0x56, 0x78}),
			uid:      UID{0x12, 0x34, 0x56, 0x78},
			capacity: Capacity1K,
			levels:   1,
		},
		{
			name:     "double size 1K",
			tag:      testutil.NewVirtualMIFARE1K([]byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}),
			uid:      UID{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66},
			capacity: Capacity1K,
			levels:   2,
		},
		{
			name:     "triple size 4K",
			tag:      testutil.NewVirtualMIFARE4K([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}),
			uid:      UID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			capacity: Capacity4K,
			levels:   3,
		},
		{
			name:     "mini",
			tag:      testutil.NewVirtualMIFAREMini([]byte{0xCA, 0xFE, 0xBA, 0xBE}),
			uid:      UID{0xCA, 0xFE, 0xBA, 0xBE},
			capacity: CapacityMini,
			levels:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestSession(t, tt.tag)

			target, err := s.Activate(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.uid, target.UID)
			assert.Equal(t, tt.capacity, target.Capacity)
			assert.Equal(t, tt.tag.ATQA, target.ATQA)
			assert.Equal(t, tt.tag.SAK, target.SAK)
			assert.Equal(t, tt.levels, s.CascadeLevel())
			assert.Equal(t, StateSelected, s.State())
		})
	}
}

func TestStepwiseDoubleSizeSelect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tag := testutil.NewVirtualMIFARE1K([]byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66})
	s := newTestSession(t, tag)

	_, err := s.RequestStandard(ctx)
	require.NoError(t, err)

	frag, err := s.Anticollide(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x88, 0x04, 0x11, 0x22}, frag)

	_, err = s.Anticollide(ctx, 2)
	require.ErrorIs(t, err, ErrInvalidState, "level 2 before select of level 1")

	sak, err := s.Select(ctx, 1, frag)
	require.NoError(t, err)
	assert.NotZero(t, sak&iso14443a.SAKCascadeBit)
	assert.Equal(t, StateRequested, s.State())
	assert.Equal(t, 2, s.CascadeLevel())

	_, err = s.Anticollide(ctx, 1)
	require.ErrorIs(t, err, ErrInvalidParameter)

	frag, err = s.Anticollide(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x33, 0x44, 0x55, 0x66}, frag)

	sak, err = s.Select(ctx, 2, frag)
	require.NoError(t, err)
	assert.Equal(t, byte(0x08), sak)
	assert.Equal(t, StateSelected, s.State())
}

func TestSelectKnownUIDWithoutAnticollision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestSession(t, testutil.NewVirtualMIFARE1K([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	_, err := s.RequestStandard(ctx)
	require.NoError(t, err)

	sak, err := s.Select(ctx, 1, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)
	assert.Equal(t, byte(0x08), sak)
}

func TestAnticollisionResolvesTwoTags(t *testing.T) {
	t.Parallel()

	// The UIDs first differ in bit 0 of byte 2; the 1 branch wins.
	low := testutil.NewVirtualMIFARE1K([]byte{0x11, 0x22, 0x30, 0x44})
	high := testutil.NewVirtualMIFARE1K([]byte{0x11, 0x22, 0x31, 0x44})
	field := testutil.NewField(low, high)
	s := newTestSession(t, field)

	target, err := s.Activate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, UID{0x11, 0x22, 0x31, 0x44}, target.UID)

	// The selected tag authenticates on its own.
	require.NoError(t, s.Authenticate(context.Background(), 1, DefaultKey, KeyA))
}

func TestAnticollisionMixedSizes(t *testing.T) {
	t.Parallel()

	single := testutil.NewVirtualMIFARE1K([]byte{0x08, 0x55, 0x66, 0x77})
	double := testutil.NewVirtualMIFARE1K([]byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66})
	s := newTestSession(t, testutil.NewField(single, double))

	target, err := s.Activate(context.Background())
	require.NoError(t, err)
	// 0x88 against 0x08 collides at bit 7, the cascade tag wins.
	assert.Equal(t, UID{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}, target.UID)
}

func TestAnticollisionBCCMismatch(t *testing.T) {
	t.Parallel()

	bad := iso14443a.Encode([]byte{0x01, 0x02, 0x03, 0x04, 0xFF})
	s := newTestSession(t, testutil.NewScript(
		testutil.Step{Rx: iso14443a.Encode([]byte{0x04, 0x00})},
		testutil.Step{Rx: bad},
	))

	_, err := s.Activate(context.Background())
	require.ErrorIs(t, err, ErrBccMismatch)
	assert.Equal(t, StateIdle, s.State())
}

func TestAnticollisionParityError(t *testing.T) {
	t.Parallel()

	answer := iso14443a.Encode([]byte{0x01, 0x02, 0x03, 0x04, 0x04})
	answer.Parity[3] ^= 1
	s := newTestSession(t, testutil.NewScript(
		testutil.Step{Rx: iso14443a.Encode([]byte{0x04, 0x00})},
		testutil.Step{Rx: answer},
	))

	_, err := s.Activate(context.Background())
	require.ErrorIs(t, err, ErrParityMismatch)
	assert.Equal(t, StateIdle, s.State())
}

func TestAnticollisionUnresolved(t *testing.T) {
	t.Parallel()

	endless := TransceiverFunc(func(_ context.Context, tx iso14443a.Frame) (iso14443a.Frame, error) {
		if tx.IsShort() {
			return iso14443a.Encode([]byte{0x04, 0x00}), nil
		}
		// Always collide on the first unknown bit.
		align := (tx.Bits - 16) % 8
		return iso14443a.Frame{}, &iso14443a.CollisionError{Pos: align}
	})
	s := newTestSession(t, endless)

	_, err := s.Activate(context.Background())
	require.ErrorIs(t, err, ErrCollisionUnresolved)
	assert.Equal(t, StateIdle, s.State())
}

func TestRequestNoTag(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualMIFARE1K(nil)
	tag.Remove()
	s := newTestSession(t, tag)

	_, err := s.RequestStandard(context.Background())
	require.ErrorIs(t, err, ErrNoTagPresent)
	assert.Equal(t, StateIdle, s.State())

	_, err = s.Activate(context.Background())
	require.ErrorIs(t, err, ErrNoTagPresent)
}

func TestRequestBadATQA(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, testutil.NewScript(testutil.Step{Rx: iso14443a.Encode([]byte{0x04})}))
	_, err := s.RequestStandard(context.Background())
	require.ErrorIs(t, err, ErrProtocolViolation)
}

func TestHaltThenWakeup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tag := testutil.NewVirtualMIFARE1K(nil)
	s := newTestSession(t, tag)

	_, err := s.Activate(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Authenticate(ctx, 4, DefaultKey, KeyA))

	require.NoError(t, s.Halt(ctx))
	assert.Equal(t, StateHalted, s.State())
	assert.True(t, tag.Halted())

	_, err = s.RequestStandard(ctx)
	require.ErrorIs(t, err, ErrInvalidState, "REQA is not legal once halted")

	target, err := s.Activate(ctx)
	require.NoError(t, err, "Activate wakes a halted tag with WUPA")
	assert.Equal(t, UID(testutil.TestMIFARE1KUID), target.UID)
	assert.False(t, tag.Halted())
}

func TestHaltedTagIgnoresREQA(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tag := testutil.NewVirtualMIFARE1K(nil)
	s := newTestSession(t, tag)
	_, err := s.Activate(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Halt(ctx))

	fresh := newTestSession(t, tag)
	_, err = fresh.RequestStandard(ctx)
	require.ErrorIs(t, err, ErrNoTagPresent)

	_, err = fresh.ActivateWakeup(ctx)
	require.NoError(t, err)
}

func TestHaltAnsweredIsViolation(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, testutil.NewScript(
		testutil.Step{Rx: iso14443a.Encode([]byte{0x04, 0x00})},
		testutil.Step{Rx: iso14443a.Encode([]byte{0x01, 0x02, 0x03, 0x04, 0x04})},
		testutil.Step{Rx: iso14443a.EncodeCommand([]byte{0x08})},
		testutil.Step{Rx: iso14443a.NibbleFrame(iso14443a.ACK)},
	))
	_, err := s.Activate(context.Background())
	require.NoError(t, err)

	err = s.Halt(context.Background())
	require.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, StateIdle, s.State())
}
