package main

import (
	"os"

	"github.com/arecko/backend/cmd/arecko/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
