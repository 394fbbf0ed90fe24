package main

import (
	"fmt"
	"os"

	"github.com/vertextoedge/cacheable-image/cmd/cacheable-image/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
