package main

import (
	"os"

	"github.com/agenthands/graphsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
