// Package command defines the operator command grammar and the
// bounded ingress that feeds commands to the stream event loop.
package command

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind identifies an operator command
type Kind int

const (
	// KindSubscribe adds topics to the desired set
	KindSubscribe Kind = iota
	// KindUnsubscribe removes topics from the desired set
	KindUnsubscribe
	// KindListLocal prints the local desired and active sets
	KindListLocal
	// KindListServer requests the server's subscription list
	KindListServer
	// KindHelp prints the command reference
	KindHelp
	// KindQuit shuts the client down
	KindQuit
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindSubscribe:
		return "subscribe"
	case KindUnsubscribe:
		return "unsubscribe"
	case KindListLocal:
		return "list"
	case KindListServer:
		return "listserver"
	case KindHelp:
		return "help"
	case KindQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Command is one parsed operator instruction
type Command struct {
	Kind   Kind
	Topics []string
}

// Parse errors
var (
	ErrEmptyLine      = stderrors.New("empty command line")
	ErrUnknownCommand = stderrors.New("unknown command")
	ErrMissingTopics  = stderrors.New("command requires at least one topic")
)

// HelpText is the interactive command reference
const HelpText = `Commands:
  addsub <topic> [topic...]   subscribe to one or more streams
  delsub <topic> [topic...]   unsubscribe from one or more streams
  list                        show local desired and active sets
  listserver                  ask the server for its subscription list
  help                        show this help
  quit                        close the connection and exit

Topics look like ethusdt@trade or btcusdt@depth5.`

// ParseLine parses one line of operator input. The verb is
// case-insensitive; topic arguments pass through untouched (the
// reconciler normalizes them).
func ParseLine(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrEmptyLine
	}

	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "addsub":
		if len(args) == 0 {
			return Command{}, fmt.Errorf("addsub: %w", ErrMissingTopics)
		}
		return Command{Kind: KindSubscribe, Topics: args}, nil
	case "delsub":
		if len(args) == 0 {
			return Command{}, fmt.Errorf("delsub: %w", ErrMissingTopics)
		}
		return Command{Kind: KindUnsubscribe, Topics: args}, nil
	case "list":
		return Command{Kind: KindListLocal}, nil
	case "listserver":
		return Command{Kind: KindListServer}, nil
	case "help":
		return Command{Kind: KindHelp}, nil
	case "quit", "exit":
		return Command{Kind: KindQuit}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
	}
}
