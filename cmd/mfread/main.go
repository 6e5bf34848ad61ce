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

// Command mfread reads and writes MIFARE Classic tags through a PN532
// (UART, I2C or PC/SC) or any libnfc device.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	mifare "github.com/ZaparooProject/go-mfclassic"
	"github.com/ZaparooProject/go-mfclassic/polling"
	"github.com/ZaparooProject/go-mfclassic/tagops"
	"github.com/ZaparooProject/go-mfclassic/transport/uart"
)

type config struct {
	device    string
	keyring   string
	key       string
	keyType   string
	logFormat string
	timeout   time.Duration
	poll      time.Duration
	verbose   bool
}

const usage = `usage: mfread [flags] <command> [args]

commands:
  ports                list serial ports
  info                 show the tag type and UID
  dump                 read every sector a key is found for
  read <block>         read one block
  write <block> <hex>  write 16 bytes to one block
  ndef                 print the NDEF message of a formatted tag
  watch                report tags arriving and leaving until interrupted

flags:
`

func parseFlags(args []string) (*config, []string, error) {
	cfg := &config{}
	fs := flag.NewFlagSet("mfread", flag.ContinueOnError)
	fs.StringVar(&cfg.device, "device", "",
		"reader: /dev/ttyUSB0, uart:COM3, i2c:/dev/i2c-1, pcsc:0 or libnfc:<connstring>; empty picks a serial port")
	fs.StringVar(&cfg.keyring, "keyring", "", "YAML keyring file")
	fs.StringVar(&cfg.key, "key", "", "key to try first (12 hex digits, - to prompt)")
	fs.StringVar(&cfg.keyType, "key-type", "A", "slot of -key: A or B")
	fs.StringVar(&cfg.logFormat, "log-format", "text", "log format: text or json")
	fs.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "how long to wait for a tag")
	fs.DurationVar(&cfg.poll, "poll-interval", 100*time.Millisecond, "pause between polls")
	fs.BoolVar(&cfg.verbose, "v", false, "enable debug logging")
	fs.Usage = func() {
		_, _ = fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return nil, nil, errors.New("missing command")
	}
	return cfg, fs.Args(), nil
}

func setupLogging(cfg *config, w io.Writer) {
	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var logger *slog.Logger
	if cfg.logFormat == "json" {
		logger = slog.New(slog.NewJSONHandler(w, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(w, opts))
	}
	slog.SetDefault(logger)
	mifare.SetLogger(logger)
	mifare.SetDebugEnabled(cfg.verbose)
}

func buildKeyring(cfg *config, stdin *os.File, stderr io.Writer) (*keyring, error) {
	k := defaultKeyring()
	if cfg.keyring != "" {
		var err error
		if k, err = loadKeyring(cfg.keyring); err != nil {
			return nil, err
		}
	}
	if cfg.key == "" {
		return k, nil
	}

	kt, err := mifare.ParseKeyType(cfg.keyType)
	if err != nil {
		return nil, err
	}
	var key mifare.Key
	if cfg.key == "-" {
		key, err = promptKey(stdin, stderr)
	} else {
		key, err = mifare.ParseKey(cfg.key)
	}
	if err != nil {
		return nil, err
	}
	k.prefer(tagops.SectorKey{Key: key, Type: kt})
	return k, nil
}

func main() {
	cfg, args, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	setupLogging(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, args, os.Stdout); err != nil {
		slog.Error("mfread failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config, args []string, out io.Writer) error {
	if args[0] == "ports" {
		return listPorts(out)
	}

	ring, err := buildKeyring(cfg, os.Stdin, os.Stderr)
	if err != nil {
		return err
	}

	r, err := openDevice(ctx, cfg.device)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			slog.Warn("close reader", "error", cerr)
		}
	}()

	session, err := mifare.New(r, mifare.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	return runCommand(ctx, cfg, args, session, ring, out)
}

// runCommand executes one command against an opened session.
func runCommand(ctx context.Context, cfg *config, args []string, session *mifare.Session,
	ring tagops.Keyring, out io.Writer,
) error {
	if args[0] == "watch" {
		return watch(ctx, cfg, session, out)
	}

	ops := tagops.New(session)
	if _, err := waitForTag(ctx, ops, cfg.timeout, cfg.poll); err != nil {
		return err
	}
	defer func() { _ = ops.Halt(ctx) }()

	switch args[0] {
	case "info":
		info, err := ops.GetTagInfo()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, info)
		return nil

	case "dump":
		dump, err := ops.Dump(ctx, ring)
		printDump(out, dump)
		return err

	case "read":
		block, err := blockArg(args, 2)
		if err != nil {
			return err
		}
		if _, err := ops.FindKey(ctx, mifare.SectorOf(block), ring); err != nil {
			return err
		}
		b, err := session.ReadBlock(ctx, uint8(block))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, formatBlock(block, b))
		return nil

	case "write":
		block, err := blockArg(args, 3)
		if err != nil {
			return err
		}
		raw, err := hex.DecodeString(strings.ReplaceAll(args[2], " ", ""))
		if err != nil || len(raw) != mifare.BlockSize {
			return fmt.Errorf("%w: block data must be %d hex bytes", mifare.ErrInvalidParameter, mifare.BlockSize)
		}
		if block == 0 {
			return fmt.Errorf("%w: block 0 holds the manufacturer data", mifare.ErrInvalidParameter)
		}
		if _, err := ops.FindKey(ctx, mifare.SectorOf(block), ring); err != nil {
			return err
		}
		if err := session.WriteBlock(ctx, uint8(block), mifare.Block(raw)); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "wrote block %d\n", block)
		return nil

	case "ndef":
		msg, err := ops.ReadNDEF(ctx)
		if err != nil {
			return err
		}
		for i, rec := range msg.Records {
			_, _ = fmt.Fprintf(out, "record %d: %s\n", i, rec)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func blockArg(args []string, want int) (int, error) {
	if len(args) != want {
		return 0, fmt.Errorf("%s: expected %d arguments", args[0], want-1)
	}
	block, err := strconv.Atoi(args[1])
	if err != nil || block < 0 || block > 255 {
		return 0, fmt.Errorf("%w: block %q", mifare.ErrInvalidParameter, args[1])
	}
	return block, nil
}

// waitForTag polls until a tag answers or timeout passes.
func waitForTag(ctx context.Context, ops *tagops.TagOperations, timeout, interval time.Duration) (*mifare.Target, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		target, err := ops.DetectTag(ctx)
		if err == nil {
			slog.Debug("tag detected", "uid", target.UID.String(), "sak", target.SAK)
			return target, nil
		}
		if !errors.Is(err, tagops.ErrNoTag) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w within %v", tagops.ErrNoTag, timeout)
		case <-time.After(interval):
		}
	}
}

func watch(ctx context.Context, cfg *config, session *mifare.Session, out io.Writer) error {
	pcfg := polling.DefaultConfig()
	pcfg.PollInterval = cfg.poll
	m := polling.NewMonitor(session, pcfg)
	m.OnCardDetected = func(_ context.Context, _ *mifare.Session, t *mifare.Target) error {
		_, _ = fmt.Fprintf(out, "arrived  %s (%s)\n", t.UID, t.Capacity)
		return nil
	}
	m.OnCardChanged = func(_ context.Context, _ *mifare.Session, t *mifare.Target) error {
		_, _ = fmt.Fprintf(out, "changed  %s (%s)\n", t.UID, t.Capacity)
		return nil
	}
	m.OnCardRemoved = func(uid mifare.UID) {
		_, _ = fmt.Fprintf(out, "removed  %s\n", uid)
	}
	err := m.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func listPorts(out io.Writer) error {
	ports, err := uart.ListPorts(uart.ListOptions{})
	if err != nil {
		return err
	}
	for _, p := range ports {
		mark := " "
		if p.Likely {
			mark = "*"
		}
		_, _ = fmt.Fprintf(out, "%s %-20s %-9s %s\n", mark, p.Path, p.VIDPID, p.Product)
	}
	return nil
}
