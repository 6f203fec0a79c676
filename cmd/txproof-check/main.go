package main

import (
	"os"

	"github.com/vultisig/txproof/cmd/txproof-check/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
