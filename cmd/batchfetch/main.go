package main

import (
	"fmt"
	"os"

	"github.com/vertextoedge/batchfetch/internal/cli"
)

const version = "0.1.0"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
