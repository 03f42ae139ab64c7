// Package main is the entry point for the Operations Center sync server.
package main

import (
	"os"

	"github.com/agroplanner/opscenter-sync/cmd/opsync/app"
	"github.com/agroplanner/opscenter-sync/internal/logger"
)

func main() {
	defer logger.Sync()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
