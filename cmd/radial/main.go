// Package main is the entry point for radial.
// This is a thin wrapper around the cli package.
package main

import (
	"os"

	"github.com/zot/radial/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
