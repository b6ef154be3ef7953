package main

import (
	"os"

	"obvcore/cmd/obvcore/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
