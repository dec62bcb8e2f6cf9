// Command lspserver runs the words language server over stdio and inspects
// the method catalog.
package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess = 0
	ExitUnclean = 1 // exit without shutdown
	ExitError   = 2 // configuration or runtime error
)

// exitCodeError carries a non-zero exit code decided by the protocol.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exited with code %d", e.code)
}

func main() {
	if err := execute(); err != nil {
		var codeErr *exitCodeError
		if errors.As(err, &codeErr) {
			os.Exit(codeErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitError)
	}
}
