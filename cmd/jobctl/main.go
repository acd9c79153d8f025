package main

import (
	"os"

	"github.com/butlernet/jobboard/cmd/jobctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
