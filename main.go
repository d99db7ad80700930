// The main package for the okapi-harvester executable.
package main

import (
	"github.com/JakeFAU/okapi-harvester/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
