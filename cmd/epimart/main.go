package main

import (
	"os"

	"github.com/wonny/epimart/cmd/epimart/commands"
)

// main is the entry point for the epimart CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/epimart [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
