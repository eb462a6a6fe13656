package main

import (
	"os"

	"github.com/supermechanical/rangelink/cmd"
	"github.com/supermechanical/rangelink/internal/conf"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd.Version = version

	settings := &conf.Settings{}
	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
