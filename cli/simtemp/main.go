// Package main is the simtemp command itself.
package main

import (
	"os"

	simtempcli "go.viam.com/simtemp/cli"
)

func main() {
	app := simtempcli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		simtempcli.Errorf(app.ErrWriter, "%v", err)
		os.Exit(1)
	}
}
