package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
)

// ExitStatus maps a command error to a process exit code and the message to
// print, which is empty when there is nothing to say. Codes from cli.Exit are
// kept; any other error exits 1.
func ExitStatus(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		// cli.Exit("", N).Error() returns "exit status N"
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return 1, "Error: " + err.Error()
}

// ExitErrHandler prints the message for err to w and calls exit with its code.
func ExitErrHandler(w io.Writer, exit func(int)) cli.ExitErrHandlerFunc {
	return func(_ *cli.Context, err error) {
		if err == nil {
			return
		}
		code, msg := ExitStatus(err)
		if msg != "" {
			fmt.Fprintln(w, msg)
		}
		exit(code)
	}
}
