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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/ZaparooProject/go-mfclassic/internal/testing"
	"github.com/ZaparooProject/go-mfclassic/iso14443a"
)

func fixedNonces(values ...uint32) NonceSource {
	i := 0
	return NonceFunc(func() (uint32, error) {
		v := values[i%len(values)]
		i++
		return v, nil
	})
}

func newTestSession(t *testing.T, tr Transceiver, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithNonceSource(fixedNonces(0x11223344, 0x55667788))}, opts...)
	s, err := New(tr, opts...)
	require.NoError(t, err)
	return s
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.ErrorIs(t, err, ErrInvalidParameter)

	tag := testutil.NewVirtualMIFARE1K(nil)
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero timeout", WithTimeout(0)},
		{"nil nonce source", WithNonceSource(nil)},
		{"bad capacity", WithCapacity(Capacity(42))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tag, tt.opt)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}

	s, err := New(tag, WithTimeout(time.Second), WithCapacity(Capacity4K), WithLogger(nil))
	require.NoError(t, err)
	assert.Equal(t, time.Second, s.config.Timeout)
	assert.Equal(t, Capacity4K, s.config.Capacity)
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Target())
}

// End to end: REQA, anticollision, select, authenticate block 4 with the
// transport key and read back the stored block.
func TestEndToEndRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tag := testutil.NewVirtualMIFARE1K([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	stored := []byte("hello, mifare!!!")
	tag.SetBlock(4, stored)
	s := newTestSession(t, tag)

	atqa, err := s.RequestStandard(ctx)
	require.NoError(t, err)
	assert.Equal(t, [2]byte{0x04, 0x00}, atqa)
	assert.Equal(t, StateRequested, s.State())

	frag, err := s.Anticollide(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, frag)
	assert.Equal(t, StateAnticollided, s.State())

	sak, err := s.Select(ctx, 1, frag)
	require.NoError(t, err)
	assert.Equal(t, byte(0x08), sak)
	assert.Equal(t, StateSelected, s.State())

	target := s.Target()
	require.NotNil(t, target)
	assert.Equal(t, UID{0xDE, 0xAD, 0xBE, 0xEF}, target.UID)
	assert.Equal(t, Capacity1K, target.Capacity)

	require.NoError(t, s.Authenticate(ctx, 4, DefaultKey, KeyA))
	assert.Equal(t, StateAuthenticated, s.State())
	auth, ok := s.Auth()
	require.True(t, ok)
	assert.Equal(t, AuthState{Sector: 1, KeyType: KeyA}, auth)

	got, err := s.ReadBlock(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, stored, got[:])
}

func TestWrongKeyThenReadSendsNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tag := testutil.NewVirtualMIFARE1K(nil)
	rec := &testutil.Recorder{Next: tag}
	s := newTestSession(t, rec)

	_, err := s.Activate(ctx)
	require.NoError(t, err)

	wrong := Key{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	err = s.Authenticate(ctx, 4, wrong, KeyA)
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Equal(t, StateSelected, s.State())
	_, ok := s.Auth()
	assert.False(t, ok)

	sent := rec.Count()
	_, err = s.ReadBlock(ctx, 4)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, sent, rec.Count(), "read without authentication must not reach the air")
	assert.Equal(t, StateSelected, s.State())
}

func TestIllegalOperationsPerformNoIO(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	rec := &testutil.Recorder{Next: testutil.NewVirtualMIFARE1K(nil)}
	s := newTestSession(t, rec)

	calls := []struct {
		name string
		call func() error
	}{
		{"anticollide from idle", func() error { _, err := s.Anticollide(ctx, 1); return err }},
		{"select from idle", func() error { _, err := s.Select(ctx, 1, []byte{1, 2, 3, 4}); return err }},
		{"authenticate from idle", func() error { return s.Authenticate(ctx, 0, DefaultKey, KeyA) }},
		{"read from idle", func() error { _, err := s.ReadBlock(ctx, 1); return err }},
		{"write from idle", func() error { return s.WriteBlock(ctx, 1, Block{}) }},
		{"halt from idle", func() error { return s.Halt(ctx) }},
	}
	for _, c := range calls {
		err := c.call()
		assert.ErrorIs(t, err, ErrInvalidState, c.name)
	}
	assert.Equal(t, 0, rec.Count())
	assert.Equal(t, StateIdle, s.State())
}

func TestSelectedReadSendsNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	rec := &testutil.Recorder{Next: testutil.NewVirtualMIFARE1K(nil)}
	s := newTestSession(t, rec)
	_, err := s.Activate(ctx)
	require.NoError(t, err)

	sent := rec.Count()
	_, err = s.ReadBlock(ctx, 4)
	require.ErrorIs(t, err, ErrInvalidState)
	err = s.WriteBlock(ctx, 4, Block{})
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, sent, rec.Count())
}

func TestTimeoutResetsToIdle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tag := testutil.NewVirtualMIFARE1K(nil)
	s := newTestSession(t, tag)
	_, err := s.Activate(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Authenticate(ctx, 4, DefaultKey, KeyA))

	tag.Remove()
	_, err = s.ReadBlock(ctx, 4)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Target())
	assert.Nil(t, s.cipher)
}

func TestContextDeadlineIsTimeout(t *testing.T) {
	t.Parallel()

	slow := TransceiverFunc(func(ctx context.Context, _ iso14443a.Frame) (iso14443a.Frame, error) {
		<-ctx.Done()
		return iso14443a.Frame{}, ctx.Err()
	})
	s := newTestSession(t, slow, WithTimeout(10*time.Millisecond))

	_, err := s.RequestStandard(context.Background())
	require.ErrorIs(t, err, ErrNoTagPresent)
	assert.Equal(t, StateIdle, s.State())
}

func TestTransportErrorPassesThrough(t *testing.T) {
	t.Parallel()

	linkErr := NewTransportError("write", "/dev/ttyUSB0", ErrTransportWrite, ErrorTypeTransient)
	s := newTestSession(t, testutil.NewScript(testutil.Step{Err: linkErr}))

	_, err := s.RequestStandard(context.Background())
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "/dev/ttyUSB0", te.Port)
	assert.Equal(t, StateIdle, s.State())
}

func TestCanceledContextSendsNothing(t *testing.T) {
	t.Parallel()

	rec := &testutil.Recorder{Next: testutil.NewVirtualMIFARE1K(nil)}
	s := newTestSession(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.RequestStandard(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, rec.Count())
}

func TestResetDropsEverything(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestSession(t, testutil.NewVirtualMIFARE1K(nil))
	_, err := s.Activate(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Authenticate(ctx, 0, DefaultKey, KeyB))

	s.Reset()
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Target())
	assert.Nil(t, s.cipher)
	assert.Equal(t, 0, s.CascadeLevel())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Idle", StateIdle.String())
	assert.Equal(t, "Authenticated", StateAuthenticated.String())
	assert.Equal(t, "Halted", StateHalted.String())
	assert.Equal(t, "SessionState(99)", SessionState(99).String())
}
