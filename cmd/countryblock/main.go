// countryblock publishes a country's IPv4 block list as a regex list and a
// host list into a version-controlled store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ripeart/CountryBlock/internal/cli"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.NewRootCommand(version).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "countryblock: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
