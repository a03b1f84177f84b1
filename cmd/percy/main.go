// Package main is the percy command-line interface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/CliForge/percy/internal/commands"
	"github.com/CliForge/percy/internal/runtime"
)

// version is set at build time.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	registry, err := runtime.NewRegistry(commands.All()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runtime.New(registry, runtime.Options{Version: version}).Execute(ctx, os.Args[1:])
}
