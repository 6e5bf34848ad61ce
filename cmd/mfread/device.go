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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	mifare "github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/libnfc"
	"github.com/ZaparooProject/go-mfclassic/pn532"
	"github.com/ZaparooProject/go-mfclassic/transport/i2c"
	"github.com/ZaparooProject/go-mfclassic/transport/pcsc"
	"github.com/ZaparooProject/go-mfclassic/transport/uart"
)

// reader is an opened air interface.
type reader interface {
	mifare.Transceiver
	io.Closer
}

// splitDevice separates "scheme:address". A bare path means UART.
func splitDevice(name string) (scheme, addr string) {
	scheme, addr, ok := strings.Cut(name, ":")
	if !ok {
		return "uart", name
	}
	switch scheme {
	case "uart", "i2c", "pcsc", "libnfc":
		return scheme, addr
	default:
		// Windows COM ports and paths with colons
		return "uart", name
	}
}

// openDevice opens the named reader. An empty name picks the most
// likely serial port.
func openDevice(ctx context.Context, name string) (reader, error) {
	if name == "" {
		ports, err := uart.ListPorts(uart.ListOptions{})
		if err != nil {
			return nil, err
		}
		if len(ports) == 0 {
			return nil, fmt.Errorf("%w: no serial ports, use -device", mifare.ErrDeviceNotFound)
		}
		slog.Debug("auto-selected serial port", "path", ports[0].Path, "product", ports[0].Product)
		name = ports[0].Path
	}

	scheme, addr := splitDevice(name)
	var t pn532.Transport
	var err error
	switch scheme {
	case "libnfc":
		r, err := libnfc.Open(addr)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "i2c":
		if addr == "" {
			if addr, err = findI2CBus(ctx); err != nil {
				return nil, err
			}
		}
		t, err = i2c.New(addr)
	case "pcsc":
		idx := 0
		if addr != "" {
			if idx, err = strconv.Atoi(addr); err != nil {
				return nil, fmt.Errorf("pcsc reader index %q: %w", addr, err)
			}
		}
		t, err = pcsc.New(idx)
	default:
		t, err = uart.New(addr)
	}
	if err != nil {
		return nil, err
	}

	r, err := pn532.NewReader(t)
	if err != nil {
		return nil, errors.Join(err, t.Close())
	}
	if err := r.Init(ctx); err != nil {
		return nil, errors.Join(err, t.Close())
	}
	if fw, err := r.FirmwareVersion(ctx); err == nil {
		slog.Info("reader ready", "device", name, "firmware", fw.String())
	}
	return r, nil
}

func findI2CBus(ctx context.Context) (string, error) {
	buses, err := i2c.Detect(ctx)
	if err != nil {
		return "", err
	}
	for _, b := range buses {
		if b.PN532 {
			slog.Debug("auto-selected i2c bus", "bus", b.Name)
			return b.Name, nil
		}
	}
	return "", fmt.Errorf("%w: no PN532 at 0x%02X on %d i2c buses", mifare.ErrDeviceNotFound, i2c.Address, len(buses))
}
