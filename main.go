package main

import (
	"os"

	"github.com/penwyp/go-photometry-sync/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
