// Command backend is the single binary this system ships: init bootstraps
// the first admin, serve runs the HTTP API plus the scheduler tick loop and
// process pool in one process, functions manages local function scaffolding.
package main

import "os"

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		return exitCodeFor(err)
	}
	return 0
}
