// The main package for the product-url-crawler executable.
package main

import (
	"github.com/JakeFAU/product-url-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
