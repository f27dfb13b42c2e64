// Command eventctl validates event names, encodes and decodes events in
// their binary wire form, publishes them to the redis relay and reads
// journal streams.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/afero"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	gs := newGlobalState(ctx, afero.NewOsFs(), os.Stdout, os.Stderr)
	if err := newRootCommand(gs).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
