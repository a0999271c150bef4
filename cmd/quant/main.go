package main

import (
	"os"

	"github.com/FeanorKingofNoldor/prometheus-v2/cmd/quant/commands"
)

// main is the entry point for the quant CLI
// go run ./cmd/quant [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
