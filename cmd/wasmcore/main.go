package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(args []string, lookupEnv func(string) (string, bool), stdOut, stdErr io.Writer) int {
	cmd := newRootCommand(lookupEnv, stdOut, stdErr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stdErr, "error: %v\n", err)
		var exit *exitCodeError
		if errors.As(err, &exit) {
			return exit.code
		}
		return 1
	}
	return 0
}

// exitCodeError sets the exit code of the process, which is 1 for any other error.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}
