// The main package for the slcrawler executable.
package main

import (
	"github.com/jacorycyjin/smart-library-crawler/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
