package main

import (
	"errors"
	"fmt"
	"os"
)

// cliError pairs an error with the process exit code it should produce:
// 0 success, 1 configuration error, 2 authentication failure, 3
// unrecoverable store failure after rebuild.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func configError(err error) error {
	if err == nil {
		return nil
	}

	return &cliError{code: 1, err: err}
}

func authError(err error) error {
	if err == nil {
		return nil
	}

	return &cliError{code: 2, err: err}
}

func storeError(err error) error {
	if err == nil {
		return nil
	}

	return &cliError{code: 3, err: err}
}

// exitOnError prints a user-friendly error message to stderr and exits
// with the code carried by err, or 1 if it isn't a cliError.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var ce *cliError
	if errors.As(err, &ce) {
		os.Exit(ce.code)
	}

	os.Exit(1)
}
