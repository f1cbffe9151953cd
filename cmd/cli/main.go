package main

import (
	"os"

	"github.com/dealscope/valuation-engine/cmd/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
