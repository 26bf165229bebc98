package main

import (
	"errors"
	"fmt"
	"strings"
)

const (
	cmdUp       = "up"
	cmdDown     = "down"
	cmdRedo     = "redo"
	cmdStatus   = "status"
	cmdTo       = "to"
	cmdCreate   = "create"
	cmdValidate = "validate"
)

type command struct {
	name string
	arg  string
}

// argRequired lists commands that take exactly one positional argument.
var argRequired = map[string]string{
	cmdTo:     "version",
	cmdCreate: "name",
}

var noArg = map[string]bool{
	cmdUp:       true,
	cmdDown:     true,
	cmdRedo:     true,
	cmdStatus:   true,
	cmdValidate: true,
}

// parseCommand reads "<command> [arg]". A missing command means up.
func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{name: cmdUp}, nil
	}
	name := strings.ToLower(strings.TrimSpace(args[0]))
	rest := args[1:]

	if argName, ok := argRequired[name]; ok {
		if len(rest) != 1 || strings.TrimSpace(rest[0]) == "" {
			return command{}, fmt.Errorf("%s requires <%s>", name, argName)
		}
		return command{name: name, arg: strings.TrimSpace(rest[0])}, nil
	}
	if noArg[name] {
		if len(rest) > 0 {
			return command{}, fmt.Errorf("%s takes no arguments", name)
		}
		return command{name: name}, nil
	}
	if name == "" {
		return command{}, errors.New("empty command")
	}
	return command{}, fmt.Errorf("unknown command %q", name)
}
