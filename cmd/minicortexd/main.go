// Command minicortexd runs the MiniCortex node-graph execution daemon:
// the registry, scheduler-driven supervisor, control-plane HTTP API and
// websocket event stream behind one process, plus a workspace
// inspection subcommand that talks to the durable store directly.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
