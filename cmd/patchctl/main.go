package main

import (
	"os"

	"github.com/Nyukimin/patchgate/cmd/patchctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
