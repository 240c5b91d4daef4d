// Command feedcore exercises the feed core from the command line: a
// simulated timeline session, and inspection of the durable store.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
