package main

import (
	"os"

	"github.com/karthala/agentline/cmd/agentline/commands"
)

// version is injected at build time via ldflags.
var version = "dev"

func main() {
	os.Exit(commands.Execute(version))
}
