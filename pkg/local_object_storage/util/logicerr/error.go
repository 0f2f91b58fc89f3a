package logicerr

import (
	"errors"
	"fmt"
)

// Error marks errors caused by invalid input rather than by storage
// failures: malformed file names, bad fragment indexes or preferences.
var Error = errors.New("logical error")

// New returns logical error with the message.
func New(msg string) error {
	return Wrap(errors.New(msg))
}

// Wrap marks err as a logical one keeping it in the chain.
func Wrap(err error) error {
	return fmt.Errorf("%w: %w", Error, err)
}

// Is reports whether err is a logical error.
func Is(err error) bool {
	return errors.Is(err, Error)
}
