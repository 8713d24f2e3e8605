package main

import (
	"os"

	"photokeep/cmd/photokeepctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
