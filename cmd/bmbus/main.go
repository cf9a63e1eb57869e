// cmd/bmbus/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: bmbus <command> [flags]

commands:
  run           address (or adopt) the chain and poll it
  assign        run the addressing handshake once and exit
  balance       set the balance target of one module
  reset-target  reset the balance target of one module

common flags:
  -config path  YAML config (default bmbus.yaml)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		err = cmdRun(ctx, args)
	case "assign":
		err = cmdAssign(ctx, args)
	case "balance":
		err = cmdBalance(ctx, args)
	case "reset-target":
		err = cmdResetTarget(ctx, args)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "bmbus %s: %v\n", os.Args[1], err)
		stop()
		os.Exit(1)
	}
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	path := fs.String("config", "bmbus.yaml", "path to YAML config")
	return fs, path
}
