package main

import (
	"os"

	"github.com/R3E-Network/solver_layer/cmd/solverctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
