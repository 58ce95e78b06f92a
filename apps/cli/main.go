package main

import "github.com/abdul-hamid-achik/schemaprobe/apps/cli/cmd"

// Populated at build time via -ldflags.
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cmd.Execute(version, buildTime)
}
