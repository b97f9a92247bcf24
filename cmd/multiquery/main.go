package main

import (
	"os"

	"github.com/nrfta/multiquery/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
