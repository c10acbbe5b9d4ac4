package main

import (
	"fmt"
	"os"

	"goregistry/cmd/goregistry-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
