package main

import (
	"os"

	"github.com/formsheet/server/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
