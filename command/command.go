// Package command implements the request grammar understood by an nsh daemon:
//
//	[<identity>@<host>[:port]@]<local-command>
//
// written with the command first, i.e. "date" or "date@<identity>@<host>". A
// request either executes a LocalCommand on the daemon that receives it, or
// forwards a single LocalCommand one hop further. Longer chains are built by
// each hop parsing and re-dialing on its own.
package command

import (
	"fmt"
	"strings"

	"hop.computer/nsh/core"
)

// LocalCommand is one of the leaf operations a daemon can run.
type LocalCommand int

// The LocalCommand vocabulary.
const (
	Echo LocalCommand = iota + 1
	Date
)

var localNames = map[LocalCommand]string{
	Echo: "echo",
	Date: "date",
}

// String returns the lowercase command name, which is also the shell command
// that implements it.
func (c LocalCommand) String() string {
	if s, ok := localNames[c]; ok {
		return s
	}
	return fmt.Sprintf("LocalCommand(%d)", int(c))
}

// UnrecognizedError is returned for a command word outside the vocabulary.
type UnrecognizedError struct {
	Token string
}

func (e *UnrecognizedError) Error() string {
	return fmt.Sprintf("invalid command %s", e.Token)
}

// ParseLocalCommand matches s exactly (case-sensitive) against the
// vocabulary.
func ParseLocalCommand(s string) (LocalCommand, error) {
	switch s {
	case "echo":
		return Echo, nil
	case "date":
		return Date, nil
	}
	return 0, &UnrecognizedError{Token: s}
}

// Command is either Execute (Hop is nil) or Forward to Hop.
type Command struct {
	Local LocalCommand
	Hop   *core.RemoteHost
}

// Execute runs c on the receiving daemon.
func Execute(c LocalCommand) Command {
	return Command{Local: c}
}

// Forward asks the receiving daemon to run c on hop.
func Forward(hop core.RemoteHost, c LocalCommand) Command {
	return Command{Local: c, Hop: &hop}
}

// IsForward is true if the command targets another host.
func (c Command) IsForward() bool {
	return c.Hop != nil
}

// String is the exact inverse of Parse.
func (c Command) String() string {
	if c.Hop == nil {
		return c.Local.String()
	}
	return c.Local.String() + "@" + c.Hop.String()
}

// Parse reads the textual form of a Command. Text without @ must be a
// LocalCommand. Otherwise the text is split at the first @: the remainder,
// further @ included, must be a peer address, and the prefix a LocalCommand.
func Parse(text string) (Command, error) {
	local, hop, ok := strings.Cut(text, "@")
	if !ok {
		lc, err := ParseLocalCommand(text)
		if err != nil {
			return Command{}, err
		}
		return Execute(lc), nil
	}
	remote, err := core.ParseRemoteHost(hop)
	if err != nil {
		return Command{}, err
	}
	lc, err := ParseLocalCommand(local)
	if err != nil {
		return Command{}, err
	}
	return Forward(remote, lc), nil
}
