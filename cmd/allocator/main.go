package main

import (
	"os"

	"github.com/tgravescs/dynexec/cmd/allocator/cmd"
	"github.com/tgravescs/dynexec/internal/config"
)

func main() {
	config.ConfigureLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
