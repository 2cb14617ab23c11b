// The main package for the extractor executable.
package main

import (
	"github.com/JakeFAU/campus-extractor/cmd"
)

func main() {
	cmd.Execute()
}
