package main

import (
	"os"

	"pycomplete/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
