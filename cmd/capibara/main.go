// Command capibara validates capability declarations and serves capability
// negotiation.
//
// Usage:
//
//	capibara validate ./capabilities
//	capibara hash feed.page.v1 feed.cursor.v2
//	capibara resolve --registry ./capabilities --list feed.cursor.v2
//	capibara serve --config capibara.yaml
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mordonez-me/capibara/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		os.Exit(cli.ExitSuccess)
	}

	// Commands report their own errors; anything else came from flag parsing.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
