package executor

import "errors"

// ErrNoCommand is returned when the invocation names no command.
var ErrNoCommand = errors.New("no command given")
