package main

import (
	"os"

	"github.com/itchyny/goxq/cli"
)

func main() {
	os.Exit(cli.Run())
}
