package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"hop.computer/nsh/config"
	"hop.computer/nsh/keys"
)

func main() {
	if err := run(os.Args, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("i", "", "path to write the identity to (default ~/.nsh/ssi_ed25519)")
	force := fs.Bool("f", false, "overwrite an existing identity")
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() > 0 {
		return errors.New("excess arguments provided")
	}

	p := *path
	if p == "" {
		p = config.DefaultIdentityPath()
	}
	p, err := config.ExpandPath(p)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err == nil && !*force {
		return fmt.Errorf("%s already exists, use -f to overwrite", p)
	}

	k := keys.GenerateNodeKeys()
	if err := keys.WriteNodeKeys(p, k); err != nil {
		return err
	}
	fmt.Fprintf(stderr, "Wrote identity to %s\n", p)
	fmt.Fprintln(stdout, k.ID())
	return nil
}
