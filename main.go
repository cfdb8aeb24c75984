package main

import (
	"os"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
