package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"hop.computer/nsh/app"
	"hop.computer/nsh/config"
	"hop.computer/nsh/flags"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	f, err := flags.ParseArgs(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	logrus.SetLevel(config.LogLevel(f.Verbosity))

	cfg, err := flags.LoadConfigFromFlags(f)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.New(os.Stdout, os.Stderr).Run(ctx, cfg)
}
