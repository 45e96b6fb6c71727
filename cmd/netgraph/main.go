// The main package for the netgraph executable.
package main

import (
	"github.com/JakeFAU/netgraph-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
