// Command mergetracker-journal inspects a tracker journal offline: it replays the file through
// the same classifier the service uses and prints the resulting standings or replay counters.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
