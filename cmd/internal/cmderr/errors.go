package cmderr

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitErr carries the exit code of a command along with its cause.
type ExitErr struct {
	Code  int
	Cause error
}

func (x ExitErr) Error() string { return x.Cause.Error() }

func (x ExitErr) Unwrap() error { return x.Cause }

// ExitCode returns code the process should exit with: the one of ExitErr
// in the chain, 1 for other errors and 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e ExitErr
	if errors.As(err, &e) {
		return e.Code
	}
	return 1
}

// Fprint writes the error to w the way ExitOnErr reports it.
func Fprint(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err)
}

// ExitOnErr reports err to os.Stderr and exits with its ExitCode. Does
// nothing if err is nil.
func ExitOnErr(err error) {
	if err != nil {
		Fprint(os.Stderr, err)
		os.Exit(ExitCode(err))
	}
}
