// Command quiver is the CLI for the quiver cache engine.
package main

import (
	"os"

	"github.com/quiverlabs/quiver/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
