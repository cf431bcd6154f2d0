// Package main is the entry point for the chatterbox CLI.
package main

import (
	"os"

	"github.com/KafClaw/chatterbox/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
