// Command cli is an operator client for the roundtable service.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newCLIApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
