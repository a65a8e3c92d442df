// autokong - console for launching and following autokong pipeline runs.
//
// Build with:
//
//	go build -ldflags "-X github.com/silkyclouds/Autokong/internal/version.Version=v0.4.0 -X github.com/silkyclouds/Autokong/internal/version.BuildTime=$(date -u +%Y-%m-%d)" ./cmd/autokong
package main

import (
	"os"

	"github.com/silkyclouds/Autokong/internal/cli"
)

func main() {
	// Cobra already printed the error
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
