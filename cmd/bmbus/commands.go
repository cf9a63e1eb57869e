// cmd/bmbus/commands.go
package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/tamzrod/bmbus/internal/poller/bmbus"
)

func cmdRun(ctx context.Context, args []string) error {
	fs, path := newFlagSet("run")
	_ = fs.Parse(args)

	s, err := openStack(*path)
	if err != nil {
		return err
	}
	defer s.Close()

	s.log.Info("bmbus starting",
		zap.Int("modules", len(s.cfg.Modules)),
		zap.Bool("addressing", s.cfg.Addressing.Enabled),
		zap.Bool("simulate", s.cfg.Simulate),
	)
	return runDaemon(ctx, s)
}

func cmdAssign(ctx context.Context, args []string) error {
	fs, path := newFlagSet("assign")
	_ = fs.Parse(args)

	s, err := openStack(*path)
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.cfg.Addressing.Enabled {
		return errors.New("addressing.enabled is false")
	}
	if err := s.bringUp(ctx); err != nil {
		return err
	}
	for _, m := range s.reg.Modules() {
		fmt.Printf("%2d  0x%02X  %-16s  %s\n", m.Position, m.Address, m.Name, m.State)
	}
	return nil
}

func cmdBalance(ctx context.Context, args []string) error {
	fs, path := newFlagSet("balance")
	addrFlag := fs.String("addr", "", "module address (e.g. 0x01)")
	target := fs.Uint("target", 0, "balance target in mV (1..65535)")
	_ = fs.Parse(args)

	addr, err := parseAddr(*addrFlag)
	if err != nil {
		return err
	}
	if *target == 0 || *target > 0xFFFF {
		return fmt.Errorf("target must be 1..65535 mV, got %d", *target)
	}

	return withClient(*path, func(c *bmbus.Client) error {
		return c.BalanceTarget(ctx, addr, uint16(*target))
	})
}

func cmdResetTarget(ctx context.Context, args []string) error {
	fs, path := newFlagSet("reset-target")
	addrFlag := fs.String("addr", "", "module address (e.g. 0x01, or 0xFF for all)")
	_ = fs.Parse(args)

	addr, err := parseAddr(*addrFlag)
	if err != nil {
		return err
	}

	return withClient(*path, func(c *bmbus.Client) error {
		return c.ResetTarget(ctx, addr)
	})
}

// withClient opens the bus without addressing and hands fn a command client.
func withClient(path string, fn func(*bmbus.Client) error) error {
	s, err := openStack(path)
	if err != nil {
		return err
	}
	defer s.Close()

	c, err := bmbus.New(s.disp)
	if err != nil {
		return err
	}
	return fn(c)
}

func parseAddr(v string) (byte, error) {
	if v == "" {
		return 0, errors.New("-addr is required")
	}
	n, err := strconv.ParseUint(v, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", v, err)
	}
	return byte(n), nil
}
