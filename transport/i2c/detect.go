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

package i2c

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	mifare "github.com/ZaparooProject/go-mfclassic"
)

const (
	cmdGetFirmwareVersion = 0x02
	probeTimeout          = 100 * time.Millisecond
)

// Bus is an I2C bus registered with the host.
type Bus struct {
	Name    string
	Aliases []string
	Number  int
	// PN532 is set when a chip answered at Address.
	PN532 bool
}

// Detect lists the host's I2C buses and probes each for a PN532. Probing
// sends GetFirmwareVersion, so it must not run while another process is
// driving the chip.
func Detect(ctx context.Context) ([]Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	var buses []Bus
	for _, ref := range i2creg.All() {
		if err := ctx.Err(); err != nil {
			return buses, err
		}
		b := Bus{Name: ref.Name, Aliases: ref.Aliases, Number: ref.Number}
		bus, err := ref.Open()
		if err != nil {
			mifare.Debugf("i2c: skipping %s: %v", ref.Name, err)
			buses = append(buses, b)
			continue
		}
		b.PN532 = probe(ctx, &i2c.Dev{Addr: Address, Bus: bus}, ref.Name)
		if err := bus.Close(); err != nil {
			mifare.Debugf("i2c: closing %s: %v", ref.Name, err)
		}
		buses = append(buses, b)
	}
	return buses, nil
}

// probe reports whether dev answers a firmware query like a PN532.
func probe(ctx context.Context, dev conn.Conn, name string) bool {
	t := newWithConn(dev, name)
	t.timeout = probeTimeout
	resp, err := t.SendCommandContext(ctx, cmdGetFirmwareVersion, nil)
	if err != nil {
		mifare.Debugf("i2c: no PN532 on %s: %v", name, err)
		return false
	}
	return len(resp) >= 4
}
