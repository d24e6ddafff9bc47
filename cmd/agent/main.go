// Command agent runs the Pennsieve desktop agent: a reverse HTTP
// proxy, a timeseries WebSocket proxy with an on-disk page cache, and
// a file-upload service backed by a SQLite work queue.
package main

import (
	"fmt"
	"os"

	"github.com/pennsieve/agent/cmd/agent/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
