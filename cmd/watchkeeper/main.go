package main

import (
	"os"

	"github.com/cinderhouse/watchkeeper/cmd/watchkeeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
